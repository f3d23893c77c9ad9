package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/eduxp/config"
	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/quiz"
	"github.com/cppla/eduxp/realtime"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type app struct {
	t      *testing.T
	db     *gorm.DB
	hub    *realtime.Hub
	router http.Handler
}

func newApp(t *testing.T) *app {
	t.Helper()
	utils.SetRedis(nil)
	config.Set(config.AppConfig{
		JWTSecret: "router-test-secret",
		GinMode:   "test",
		GinPath:   filepath.Join(t.TempDir(), "gin.log"),
	})

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))

	store := settings.NewStore(db)
	ledger := gamification.NewLedger(db, store)
	catalog := quiz.NewCatalog(db, 100)
	manager := quiz.NewManager(catalog, ledger)
	t.Cleanup(manager.Shutdown)
	hub := realtime.NewHub(8)
	broker := realtime.NewBroker(hub, nil, "")

	r := SetupRouter(Deps{
		DB:        db,
		Settings:  store,
		Ledger:    ledger,
		Catalog:   catalog,
		Quizzes:   manager,
		Publisher: broker,
		Hub:       hub,
	})
	return &app{t: t, db: db, hub: hub, router: r}
}

func (a *app) user(role string) string {
	a.t.Helper()
	id := uuid.NewString()
	require.NoError(a.t, a.db.Create(&models.User{ID: id, Username: role + "_" + id[:4], Role: role}).Error)
	return a.token(id)
}

func (a *app) token(id string) string {
	a.t.Helper()
	tok, err := utils.GenerateToken(id, "", time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *app) do(method, path, token string, payload interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	var env envelope
	if bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestHealthAndUnknownRoute(t *testing.T) {
	a := newApp(t)
	code, env := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, env.Code)

	code, env = a.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 40400, env.Code)

	code, _ = a.do(http.MethodGet, "/api/v1/me/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCheckInFollowsAttendanceToggle(t *testing.T) {
	a := newApp(t)
	admin := a.user(models.RoleAdmin)
	student := a.token(uuid.NewString())

	code, env := a.do(http.MethodPost, "/api/v1/attendance/check-in", student, nil)
	assert.Equal(t, http.StatusForbidden, code, "attendance starts closed")
	assert.Equal(t, 40330, env.Code)

	code, _ = a.do(http.MethodPatch, "/api/v1/admin/settings", student, map[string]bool{"is_attendance_open": true})
	assert.Equal(t, http.StatusForbidden, code, "students cannot toggle settings")

	code, env = a.do(http.MethodPatch, "/api/v1/admin/settings", admin, map[string]bool{"is_attendance_open": true})
	require.Equal(t, http.StatusOK, code)
	row := decode[models.AppSetting](t, env.Data)
	assert.True(t, row.IsAttendanceOpen)
	assert.True(t, row.IsRegistrationOpen)

	code, env = a.do(http.MethodPost, "/api/v1/attendance/check-in", student, nil)
	require.Equal(t, http.StatusOK, code)
	res := decode[gamification.CheckInResult](t, env.Data)
	assert.False(t, res.AlreadyCheckedIn)
	assert.Equal(t, 10, res.PointsAwarded)
	assert.Equal(t, 1, res.Streak)

	code, env = a.do(http.MethodPost, "/api/v1/attendance/check-in", student, nil)
	require.Equal(t, http.StatusOK, code)
	res = decode[gamification.CheckInResult](t, env.Data)
	assert.True(t, res.AlreadyCheckedIn)
	assert.Zero(t, res.PointsAwarded)
	assert.Equal(t, 10, res.Points)

	code, env = a.do(http.MethodGet, "/api/v1/me/progress", student, nil)
	require.Equal(t, http.StatusOK, code)
	prog := decode[gamification.Progress](t, env.Data)
	assert.Equal(t, 10, prog.Points)
	assert.Equal(t, 1, prog.Level)
	assert.True(t, prog.CheckedInToday)
}

func TestRegistrationClosedRefusesNewProfiles(t *testing.T) {
	a := newApp(t)
	admin := a.user(models.RoleAdmin)
	code, _ := a.do(http.MethodPatch, "/api/v1/admin/settings", admin, map[string]bool{"is_registration_open": false})
	require.Equal(t, http.StatusOK, code)

	code, env := a.do(http.MethodGet, "/api/v1/me/progress", a.token(uuid.NewString()), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 40301, env.Code)
}

func TestQuizFlowOverHTTP(t *testing.T) {
	a := newApp(t)
	teacher := a.user(models.RoleTeacher)
	student := a.user(models.RoleStudent)
	class := models.Class{Title: "Physics"}
	require.NoError(t, a.db.Create(&class).Error)

	code, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/classes/%d/quizzes", class.ID), teacher,
		quiz.QuizInput{Title: "Forces", TimeLimitSeconds: 300})
	require.Equal(t, http.StatusCreated, code)
	qz := decode[models.Quiz](t, env.Data)
	assert.Equal(t, 100, qz.XPReward)

	code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/quizzes/%d/questions", qz.ID), teacher, quiz.QuestionInput{
		Question: "Unit of force?",
		Options:  []models.QuizOption{{Text: "Newton", IsCorrect: true}, {Text: "Joule", IsCorrect: true}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code, "two correct options are rejected")

	var ids []uint
	for _, text := range []string{"Unit of force?", "Unit of energy?"} {
		code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/quizzes/%d/questions", qz.ID), teacher, quiz.QuestionInput{
			Question: text,
			Options:  []models.QuizOption{{Text: "right", IsCorrect: true}, {Text: "wrong"}},
		})
		require.Equal(t, http.StatusCreated, code)
		ids = append(ids, decode[models.QuizQuestion](t, env.Data).ID)
	}

	base := fmt.Sprintf("/api/v1/quizzes/%d", qz.ID)
	code, env = a.do(http.MethodGet, base+"/session", student, nil)
	require.Equal(t, http.StatusOK, code)
	st := decode[quiz.State](t, env.Data)
	assert.Equal(t, quiz.PhaseIntro, st.Phase)
	assert.True(t, st.CanStart)

	code, _ = a.do(http.MethodPut, base+"/answers", student, body{"question_id": ids[0], "option": 0})
	assert.Equal(t, http.StatusConflict, code, "answers need a started quiz")

	code, env = a.do(http.MethodPost, base+"/start", student, nil)
	require.Equal(t, http.StatusOK, code)
	st = decode[quiz.State](t, env.Data)
	assert.Equal(t, quiz.PhasePlaying, st.Phase)
	require.NotNil(t, st.Question)
	assert.Equal(t, []string{"right", "wrong"}, st.Question.Options)

	code, _ = a.do(http.MethodPut, base+"/answers", student, body{"question_id": ids[0], "option": 0})
	require.Equal(t, http.StatusOK, code)
	code, env = a.do(http.MethodPost, base+"/submit", student, nil)
	assert.Equal(t, http.StatusConflict, code, "manual submit only from the last question")

	code, _ = a.do(http.MethodPost, base+"/navigate", student, body{"action": "next"})
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodPut, base+"/answers", student, body{"question_id": ids[1], "option": 1})
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodPost, base+"/submit", student, nil)
	require.Equal(t, http.StatusOK, code)
	st = decode[quiz.State](t, env.Data)
	assert.Equal(t, quiz.PhaseResult, st.Phase)
	require.NotNil(t, st.Result)
	assert.Equal(t, 50, st.Result.Score)
	assert.Equal(t, 50, st.Result.XPAwarded)

	// coming back shows the stored result and never a new attempt
	code, env = a.do(http.MethodGet, base+"/session", student, nil)
	require.Equal(t, http.StatusOK, code)
	st = decode[quiz.State](t, env.Data)
	assert.Equal(t, quiz.PhaseResult, st.Phase)
	require.NotNil(t, st.Result)
	assert.True(t, st.Result.Prior)
	code, _ = a.do(http.MethodPost, base+"/start", student, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = a.do(http.MethodGet, "/api/v1/me/points", student, nil)
	require.Equal(t, http.StatusOK, code)
	logs := decode[struct {
		Items []models.PointLog `json:"items"`
	}](t, env.Data)
	require.Len(t, logs.Items, 1)
	assert.Equal(t, gamification.QuizSource(qz.ID), logs.Items[0].Source)

	code, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/classes/%d/quizzes", class.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[struct {
		Items []quiz.ClassQuiz `json:"items"`
	}](t, env.Data)
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].Attempted)
}

func TestZeroQuestionQuizCannotStart(t *testing.T) {
	a := newApp(t)
	teacher := a.user(models.RoleTeacher)
	student := a.user(models.RoleStudent)
	class := models.Class{Title: "Empty"}
	require.NoError(t, a.db.Create(&class).Error)
	code, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/admin/classes/%d/quizzes", class.ID), teacher,
		quiz.QuizInput{Title: "Nothing yet", TimeLimitSeconds: 60})
	require.Equal(t, http.StatusCreated, code)
	qz := decode[models.Quiz](t, env.Data)

	code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/quizzes/%d/start", qz.ID), student, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, 42250, env.Code)

	code, _ = a.do(http.MethodGet, "/api/v1/quizzes/999/session", student, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMaterialCompletionAwardsOnce(t *testing.T) {
	a := newApp(t)
	student := a.user(models.RoleStudent)
	class := models.Class{Title: "History"}
	require.NoError(t, a.db.Create(&class).Error)
	mat := models.Material{ClassID: class.ID, Title: "Intro", Type: "text", XPReward: 30}
	require.NoError(t, a.db.Create(&mat).Error)

	path := fmt.Sprintf("/api/v1/materials/%d/complete", mat.ID)
	code, env := a.do(http.MethodPost, path, student, nil)
	require.Equal(t, http.StatusOK, code)
	first := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, true, first["awarded"])
	assert.EqualValues(t, 30, first["xp_awarded"])

	code, env = a.do(http.MethodPost, path, student, nil)
	require.Equal(t, http.StatusOK, code)
	second := decode[map[string]interface{}](t, env.Data)
	assert.Equal(t, false, second["awarded"])

	code, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/classes/%d/materials", class.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"completed":true`)

	code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/classes/%d/join", class.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"joined":true`)
	code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/classes/%d/join", class.ID), student, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"joined":false`)

	code, _ = a.do(http.MethodPost, "/api/v1/materials/999/complete", student, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDiscussionWritesPublishEvents(t *testing.T) {
	a := newApp(t)
	author := a.user(models.RoleStudent)
	other := a.user(models.RoleStudent)
	teacher := a.user(models.RoleTeacher)
	class := models.Class{Title: "Art"}
	require.NoError(t, a.db.Create(&class).Error)
	sub := a.hub.Subscribe(class.ID)

	next := func() realtime.Event {
		select {
		case e := <-sub.C():
			return e
		case <-time.After(time.Second):
			t.Fatal("no realtime event")
			return realtime.Event{}
		}
	}

	code, env := a.do(http.MethodPost, fmt.Sprintf("/api/v1/classes/%d/discussions", class.ID), author,
		body{"content": "<script>x</script>Hello <b>class</b>"})
	require.Equal(t, http.StatusCreated, code)
	thread := decode[models.Discussion](t, env.Data)
	assert.NotContains(t, thread.Content, "<script>")
	e := next()
	assert.Equal(t, realtime.TableDiscussions, e.Table)
	assert.Equal(t, realtime.OpInsert, e.Op)
	assert.Equal(t, thread.ID, e.RecordID)

	code, env = a.do(http.MethodPost, fmt.Sprintf("/api/v1/discussions/%d/replies", thread.ID), other, body{"content": "hi"})
	require.Equal(t, http.StatusCreated, code)
	reply := decode[models.DiscussionReply](t, env.Data)
	e = next()
	assert.Equal(t, realtime.TableDiscussionReplies, e.Table)

	code, _ = a.do(http.MethodPut, fmt.Sprintf("/api/v1/discussions/%d", thread.ID), other, body{"content": "hijack"})
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPut, fmt.Sprintf("/api/v1/discussions/%d", thread.ID), author, body{"content": "edited"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, realtime.OpUpdate, next().Op)

	code, _ = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/replies/%d", reply.ID), author, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/replies/%d", reply.ID), teacher, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, realtime.OpDelete, next().Op)

	code, env = a.do(http.MethodGet, fmt.Sprintf("/api/v1/classes/%d/discussions", class.ID), other, nil)
	require.Equal(t, http.StatusOK, code)
	page := decode[struct {
		Items []models.Discussion `json:"items"`
	}](t, env.Data)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "edited", page.Items[0].Content)
	assert.Empty(t, page.Items[0].Replies)

	code, _ = a.do(http.MethodDelete, fmt.Sprintf("/api/v1/discussions/%d", thread.ID), author, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, realtime.OpDelete, next().Op)
}

func TestAdminUserManagement(t *testing.T) {
	a := newApp(t)
	admin := a.user(models.RoleAdmin)
	teacher := a.user(models.RoleTeacher)
	studentID := uuid.NewString()
	require.NoError(t, a.db.Create(&models.User{ID: studentID, Username: "stu", Points: 20}).Error)

	code, _ := a.do(http.MethodGet, "/api/v1/admin/users", teacher, nil)
	assert.Equal(t, http.StatusForbidden, code, "user management is admin only")

	code, env := a.do(http.MethodGet, "/api/v1/admin/users?role=student", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), studentID)

	code, env = a.do(http.MethodPost, "/api/v1/admin/users/"+studentID+"/points", admin, body{"delta": -50, "note": "duplicate grant"})
	require.Equal(t, http.StatusOK, code)
	corr := decode[gamification.CorrectionResult](t, env.Data)
	assert.Equal(t, -20, corr.Applied)
	assert.Equal(t, 0, corr.Points)

	code, _ = a.do(http.MethodPatch, "/api/v1/admin/users/"+studentID+"/role", admin, body{"role": "wizard"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodPatch, "/api/v1/admin/users/"+studentID+"/role", admin, body{"role": models.RoleTeacher})
	require.Equal(t, http.StatusOK, code)
	var u models.User
	require.NoError(t, a.db.First(&u, "id = ?", studentID).Error)
	assert.Equal(t, models.RoleTeacher, u.Role)

	code, _ = a.do(http.MethodPatch, "/api/v1/admin/users/"+uuid.NewString()+"/role", admin, body{"role": models.RoleStudent})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLeaderboardListsStudentsOnly(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.db.Create(&models.User{ID: uuid.NewString(), Username: "top", Points: 300}).Error)
	require.NoError(t, a.db.Create(&models.User{ID: uuid.NewString(), Username: "boss", Role: models.RoleAdmin, Points: 999}).Error)
	student := a.user(models.RoleStudent)

	code, env := a.do(http.MethodGet, "/api/v1/leaderboard", student, nil)
	require.Equal(t, http.StatusOK, code)
	board := decode[struct {
		Items []gamification.LeaderboardEntry `json:"items"`
	}](t, env.Data)
	require.Len(t, board.Items, 2)
	assert.Equal(t, "top", board.Items[0].Username)
	assert.Equal(t, 1, board.Items[0].Rank)
	assert.Equal(t, 4, board.Items[0].Level)
}

// body is a tiny JSON request helper.
type body map[string]interface{}
