package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/eduxp/models"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrClassNotFound    = errors.New("class not found")
	ErrInvalidQuiz      = errors.New("invalid quiz")
	ErrInvalidQuestion  = errors.New("invalid question")
)

// Catalog reads and authors quizzes and their questions.
type Catalog struct {
	db        *gorm.DB
	defaultXP int
}

// NewCatalog returns a Catalog; defaultXP applies to quizzes created without a reward.
func NewCatalog(db *gorm.DB, defaultXP int) *Catalog {
	if defaultXP <= 0 {
		defaultXP = 100
	}
	return &Catalog{db: db, defaultXP: defaultXP}
}

// QuizInput is the payload for creating a quiz.
type QuizInput struct {
	Title            string `json:"title"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
	XPReward         int    `json:"xp_reward"`
}

// QuestionInput is the payload for adding a question.
type QuestionInput struct {
	Question   string              `json:"question"`
	Options    []models.QuizOption `json:"options"`
	OrderIndex *int                `json:"order_index"`
}

// CreateQuiz adds a quiz to an existing class.
func (c *Catalog) CreateQuiz(ctx context.Context, classID uint, in QuizInput) (models.Quiz, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Quiz{}, fmt.Errorf("%w: title is required", ErrInvalidQuiz)
	}
	if in.TimeLimitSeconds <= 0 {
		return models.Quiz{}, fmt.Errorf("%w: time_limit_seconds must be positive", ErrInvalidQuiz)
	}
	if in.XPReward < 0 {
		return models.Quiz{}, fmt.Errorf("%w: xp_reward must not be negative", ErrInvalidQuiz)
	}
	var class models.Class
	if err := c.db.WithContext(ctx).First(&class, classID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Quiz{}, ErrClassNotFound
		}
		return models.Quiz{}, err
	}
	q := models.Quiz{
		ClassID:          classID,
		Title:            title,
		TimeLimitSeconds: in.TimeLimitSeconds,
		XPReward:         in.XPReward,
	}
	if q.XPReward == 0 {
		q.XPReward = c.defaultXP
	}
	if err := c.db.WithContext(ctx).Create(&q).Error; err != nil {
		return models.Quiz{}, err
	}
	return q, nil
}

// AddQuestion appends a question. It needs at least two non-empty options and exactly one correct.
func (c *Catalog) AddQuestion(ctx context.Context, quizID uint, in QuestionInput) (models.QuizQuestion, error) {
	text := strings.TrimSpace(in.Question)
	if text == "" {
		return models.QuizQuestion{}, fmt.Errorf("%w: question text is required", ErrInvalidQuestion)
	}
	if len(in.Options) < 2 {
		return models.QuizQuestion{}, fmt.Errorf("%w: at least two options are required", ErrInvalidQuestion)
	}
	correct := 0
	opts := make([]models.QuizOption, 0, len(in.Options))
	for i, o := range in.Options {
		t := strings.TrimSpace(o.Text)
		if t == "" {
			return models.QuizQuestion{}, fmt.Errorf("%w: option %d is empty", ErrInvalidQuestion, i)
		}
		if o.IsCorrect {
			correct++
		}
		opts = append(opts, models.QuizOption{Text: t, IsCorrect: o.IsCorrect})
	}
	if correct != 1 {
		return models.QuizQuestion{}, fmt.Errorf("%w: exactly one option must be correct, got %d", ErrInvalidQuestion, correct)
	}

	var out models.QuizQuestion
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var quiz models.Quiz
		if err := tx.First(&quiz, quizID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQuizNotFound
			}
			return err
		}
		order := 0
		if in.OrderIndex != nil {
			order = *in.OrderIndex
		} else {
			var top struct{ N *int }
			if err := tx.Model(&models.QuizQuestion{}).Select("MAX(order_index) AS n").
				Where("quiz_id = ?", quizID).Scan(&top).Error; err != nil {
				return err
			}
			if top.N != nil {
				order = *top.N + 1
			}
		}
		out = models.QuizQuestion{QuizID: quizID, Question: text, Options: opts, OrderIndex: order}
		return tx.Create(&out).Error
	})
	return out, err
}

// DeleteQuestion removes a question.
func (c *Catalog) DeleteQuestion(ctx context.Context, questionID uint) error {
	res := c.db.WithContext(ctx).Delete(&models.QuizQuestion{}, questionID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

// Quiz fetches one quiz.
func (c *Catalog) Quiz(ctx context.Context, quizID uint) (models.Quiz, error) {
	var q models.Quiz
	if err := c.db.WithContext(ctx).First(&q, quizID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Quiz{}, ErrQuizNotFound
		}
		return models.Quiz{}, err
	}
	return q, nil
}

// Questions lists a quiz's questions in display order.
func (c *Catalog) Questions(ctx context.Context, quizID uint) ([]models.QuizQuestion, error) {
	var qs []models.QuizQuestion
	err := c.db.WithContext(ctx).Where("quiz_id = ?", quizID).
		Order("order_index ASC").Order("id ASC").Find(&qs).Error
	return qs, err
}

// ClassQuiz is a quiz listing entry with the caller's attempt, if any.
type ClassQuiz struct {
	models.Quiz
	QuestionCount int64 `json:"question_count"`
	Attempted     bool  `json:"attempted"`
	Score         *int  `json:"score,omitempty"`
}

// ByClass lists the quizzes of a class with userID's attempt status.
func (c *Catalog) ByClass(ctx context.Context, classID uint, userID string) ([]ClassQuiz, error) {
	var quizzes []models.Quiz
	if err := c.db.WithContext(ctx).Where("class_id = ?", classID).
		Order("created_at ASC").Find(&quizzes).Error; err != nil {
		return nil, err
	}
	if len(quizzes) == 0 {
		return []ClassQuiz{}, nil
	}
	ids := make([]uint, 0, len(quizzes))
	for _, q := range quizzes {
		ids = append(ids, q.ID)
	}

	type countRow struct {
		QuizID uint
		N      int64
	}
	var counts []countRow
	if err := c.db.WithContext(ctx).Model(&models.QuizQuestion{}).
		Select("quiz_id, COUNT(*) AS n").Where("quiz_id IN ?", ids).
		Group("quiz_id").Scan(&counts).Error; err != nil {
		return nil, err
	}
	countBy := make(map[uint]int64, len(counts))
	for _, r := range counts {
		countBy[r.QuizID] = r.N
	}

	var attempts []models.QuizAttempt
	if err := c.db.WithContext(ctx).Select("quiz_id", "score").
		Where("user_id = ? AND quiz_id IN ?", userID, ids).Find(&attempts).Error; err != nil {
		return nil, err
	}
	scoreBy := make(map[uint]int, len(attempts))
	for _, a := range attempts {
		scoreBy[a.QuizID] = a.Score
	}

	out := make([]ClassQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		cq := ClassQuiz{Quiz: q, QuestionCount: countBy[q.ID]}
		if s, ok := scoreBy[q.ID]; ok {
			s := s
			cq.Attempted = true
			cq.Score = &s
		}
		out = append(out, cq)
	}
	return out, nil
}
