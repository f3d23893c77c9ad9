package gamification

import (
	"context"
	"sync"
	"time"

	"github.com/cppla/eduxp/metrics"
	"github.com/cppla/eduxp/models"
	"github.com/cppla/eduxp/utils"
)

// Reconciler periodically grants quiz XP for attempts whose point-log row is missing.
// Submissions write both rows in one transaction, so this only repairs rows imported
// or written by older deployments. AwardOnce keeps every pass idempotent.
type Reconciler struct {
	ledger   *Ledger
	interval time.Duration
	batch    int

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewReconciler returns a stopped Reconciler.
func NewReconciler(l *Ledger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{
		ledger:   l,
		interval: interval,
		batch:    200,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

type attemptRow struct {
	ID       uint
	UserID   string
	QuizID   uint
	Score    int
	XPReward int
}

// RunOnce scans every attempt once and returns how many grants it made.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	db := r.ledger.DB().WithContext(ctx)
	granted := 0
	var cursor uint
	for {
		var rows []attemptRow
		err := db.Table("quiz_attempts AS a").
			Select("a.id, a.user_id, a.quiz_id, a.score, q.xp_reward").
			Joins("JOIN quizzes AS q ON q.id = a.quiz_id").
			Where("a.id > ?", cursor).
			Order("a.id ASC").Limit(r.batch).
			Scan(&rows).Error
		if err != nil {
			return granted, err
		}
		if len(rows) == 0 {
			return granted, nil
		}
		cursor = rows[len(rows)-1].ID

		sources := make([]string, 0, len(rows))
		for _, row := range rows {
			sources = append(sources, QuizSource(row.QuizID))
		}
		var logs []models.PointLog
		if err := db.Select("user_id", "source").Where("source IN ?", sources).Find(&logs).Error; err != nil {
			return granted, err
		}
		have := make(map[string]struct{}, len(logs))
		for _, lg := range logs {
			have[lg.UserID+"|"+lg.Source] = struct{}{}
		}

		for _, row := range rows {
			source := QuizSource(row.QuizID)
			if _, ok := have[row.UserID+"|"+source]; ok {
				continue
			}
			xp := ScaledXP(row.Score, row.XPReward)
			if xp <= 0 {
				continue
			}
			awarded, err := r.ledger.AwardOnce(ctx, row.UserID, source, xp)
			if err != nil {
				utils.Sugar.Warnw("reconcile award failed", "user_id", row.UserID, "source", source, "err", err)
				continue
			}
			if awarded {
				granted++
				metrics.ReconciledAwards.Inc()
			}
		}
		if len(rows) < r.batch {
			return granted, nil
		}
	}
}

// Start launches the background loop. It sleeps one interval before the first pass.
func (r *Reconciler) Start() {
	r.startOnce.Do(func() {
		r.started = true
		go r.loop()
	})
}

func (r *Reconciler) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			n, err := r.RunOnce(ctx)
			cancel()
			if err != nil {
				utils.Sugar.Errorf("xp reconcile pass failed: %v", err)
				continue
			}
			if n > 0 {
				utils.Sugar.Infof("xp reconcile granted %d missing quiz awards", n)
			}
		}
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.startOnce.Do(func() {})
		if r.started {
			<-r.done
		}
	})
}
