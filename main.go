package main

import (
	"time"

	"github.com/cppla/eduxp/config"
	"github.com/cppla/eduxp/gamification"
	"github.com/cppla/eduxp/quiz"
	"github.com/cppla/eduxp/realtime"
	"github.com/cppla/eduxp/routes"
	"github.com/cppla/eduxp/settings"
	"github.com/cppla/eduxp/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	db := config.InitDatabase()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		utils.Sugar.Warnf("unknown timezone %q, using UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}

	store := settings.NewStore(db)
	ledger := gamification.NewLedger(db, store,
		gamification.WithLocation(loc),
		gamification.WithCheckInReward(cfg.CheckInRewardPoints),
		gamification.WithDefaultMaterialXP(cfg.DefaultMaterialXP),
		gamification.WithLeaderboardTTL(time.Duration(cfg.LeaderboardCacheSec)*time.Second),
	)
	catalog := quiz.NewCatalog(db, cfg.DefaultQuizXP)
	quizzes := quiz.NewManager(catalog, ledger)

	hub := realtime.NewHub(32)
	broker := realtime.NewBroker(hub, utils.GetRedis(), realtime.DefaultChannel)
	if err := broker.Start(); err != nil {
		utils.Sugar.Warnf("realtime relay unavailable, events stay on this instance: %v", err)
		broker = realtime.NewBroker(hub, nil, "")
	}

	reconciler := gamification.NewReconciler(ledger, time.Duration(cfg.ReconcileIntervalSec)*time.Second)
	reconciler.Start()

	r := routes.SetupRouter(routes.Deps{
		DB:        db,
		Settings:  store,
		Ledger:    ledger,
		Catalog:   catalog,
		Quizzes:   quizzes,
		Publisher: broker,
		Hub:       hub,
	})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DEFAULT_READ_TIMEOUT, utils.DEFAULT_WRITE_TIMEOUT)
	srv.OnShutdown(broker.Stop)
	srv.OnShutdown(quizzes.Shutdown)
	srv.OnShutdown(reconciler.Stop)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
