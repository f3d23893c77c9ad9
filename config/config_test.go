package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  AppPort: "9090"
  JWTSecret: from-yaml
  AllowedOrigins: ["https://school.example"]
database:
  Driver: sqlite
  DatabaseURI: "file:edu.db"
gamification:
  Timezone: UTC
  CheckInRewardPoints: 15
  DefaultQuizXP: 200
`)
	var c AppConfig
	found, err := loadFileConfig(path, &c)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "from-yaml", c.JWTSecret)
	assert.Equal(t, []string{"https://school.example"}, c.AllowedOrigins)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, "file:edu.db", c.DatabaseURI)
	assert.Equal(t, "UTC", c.Timezone)
	assert.Equal(t, 15, c.CheckInRewardPoints)
	assert.Equal(t, 200, c.DefaultQuizXP)
}

func TestLoadFileConfigJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"app":{"JWTSecret":"from-json"},"redis":{"RedisHost":"cache","RedisPort":6380}}`)
	var c AppConfig
	found, err := loadFileConfig(path, &c)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "from-json", c.JWTSecret)
	assert.Equal(t, "cache", c.RedisHost)
	assert.Equal(t, 6380, c.RedisPort)
}

func TestLoadFileConfigMissingAndBroken(t *testing.T) {
	var c AppConfig
	found, err := loadFileConfig(filepath.Join(t.TempDir(), "absent.yaml"), &c)
	assert.NoError(t, err)
	assert.False(t, found)

	found, err = loadFileConfig(writeFile(t, "bad.yaml", "app: [unclosed"), &c)
	assert.Error(t, err)
	assert.True(t, found)
}

func TestApplyDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "3306", c.DBPort)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, 10, c.CheckInRewardPoints)
	assert.Equal(t, 50, c.DefaultMaterialXP)
	assert.Equal(t, 100, c.DefaultQuizXP)
	assert.Equal(t, "Asia/Jakarta", c.Timezone)

	pg := AppConfig{DBDriver: "postgres", CheckInRewardPoints: 5}
	applyDefaults(&pg)
	assert.Equal(t, "5432", pg.DBPort)
	assert.Equal(t, 5, pg.CheckInRewardPoints, "explicit values are kept")
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("CHECKIN_REWARD_POINTS", "25")
	t.Setenv("LOG_COMPRESS", "true")
	t.Setenv("TIMEZONE", "Europe/Berlin")

	c := AppConfig{JWTSecret: "from-file", CheckInRewardPoints: 10}
	applyEnvOverrides(&c)
	assert.Equal(t, "from-env", c.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, 25, c.CheckInRewardPoints)
	assert.True(t, c.LogCompress)
	assert.Equal(t, "Europe/Berlin", c.Timezone)
}

func TestSetAppliesDefaults(t *testing.T) {
	Set(AppConfig{JWTSecret: "s"})
	got := Get()
	assert.Equal(t, "s", got.JWTSecret)
	assert.Equal(t, 60, got.RateLimitPerMinute)
	assert.Equal(t, "release", got.GinMode)
}
