// Package settings exposes the global toggles (attendance window, registration)
// stored in the single app_settings row.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

const cacheKey = "settings:app"

// Provider answers the toggle questions the ledger and auth layer ask.
type Provider interface {
	IsAttendanceOpen(ctx context.Context) (bool, error)
	IsRegistrationOpen(ctx context.Context) (bool, error)
}

// Patch carries a partial settings update; nil fields are left untouched.
type Patch struct {
	IsAttendanceOpen   *bool `json:"is_attendance_open"`
	IsRegistrationOpen *bool `json:"is_registration_open"`
}

// Store is the database-backed Provider. Reads go through Redis when available.
type Store struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewStore returns a Store reading the app_settings row.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, ttl: 15 * time.Second}
}

// Get returns the current settings, creating the default row if it is missing.
func (s *Store) Get(ctx context.Context) (models.AppSetting, error) {
	var row models.AppSetting
	if utils.CacheGetJSON(cacheKey, &row) {
		return row, nil
	}
	err := s.db.WithContext(ctx).First(&row, models.AppSettingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.AppSetting{ID: models.AppSettingID, IsRegistrationOpen: true}
		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err == nil {
			err = s.db.WithContext(ctx).First(&row, models.AppSettingID).Error
		}
	}
	if err != nil {
		return models.AppSetting{}, fmt.Errorf("load settings: %w", err)
	}
	utils.CacheSetJSON(cacheKey, row, s.ttl)
	return row, nil
}

// Update applies p and returns the stored result.
func (s *Store) Update(ctx context.Context, p Patch) (models.AppSetting, error) {
	if _, err := s.Get(ctx); err != nil {
		return models.AppSetting{}, err
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if p.IsAttendanceOpen != nil {
		updates["is_attendance_open"] = *p.IsAttendanceOpen
	}
	if p.IsRegistrationOpen != nil {
		updates["is_registration_open"] = *p.IsRegistrationOpen
	}
	if err := s.db.WithContext(ctx).Model(&models.AppSetting{}).
		Where("id = ?", models.AppSettingID).Updates(updates).Error; err != nil {
		return models.AppSetting{}, fmt.Errorf("update settings: %w", err)
	}
	utils.InvalidateByPrefix(cacheKey)
	return s.Get(ctx)
}

// IsAttendanceOpen implements Provider.
func (s *Store) IsAttendanceOpen(ctx context.Context) (bool, error) {
	row, err := s.Get(ctx)
	return row.IsAttendanceOpen, err
}

// IsRegistrationOpen implements Provider.
func (s *Store) IsRegistrationOpen(ctx context.Context) (bool, error) {
	row, err := s.Get(ctx)
	return row.IsRegistrationOpen, err
}

// Static is an in-memory Provider for tools and tests.
type Static struct {
	mu           sync.RWMutex
	attendance   bool
	registration bool
}

// NewStatic returns a Static provider with the given toggles.
func NewStatic(attendanceOpen, registrationOpen bool) *Static {
	return &Static{attendance: attendanceOpen, registration: registrationOpen}
}

func (s *Static) IsAttendanceOpen(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attendance, nil
}

func (s *Static) IsRegistrationOpen(context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registration, nil
}

// SetAttendanceOpen flips the attendance toggle.
func (s *Static) SetAttendanceOpen(open bool) {
	s.mu.Lock()
	s.attendance = open
	s.mu.Unlock()
}
