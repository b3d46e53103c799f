package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vandalwatch/internal/admission"
	"vandalwatch/internal/classifier"
	"vandalwatch/internal/config"
	"vandalwatch/internal/db"
	"vandalwatch/internal/detector"
	"vandalwatch/internal/feed"
	"vandalwatch/internal/jobs"
	"vandalwatch/internal/metrics"
	"vandalwatch/internal/pipeline"
	"vandalwatch/internal/server"
	"vandalwatch/internal/session"
	"vandalwatch/internal/wiki"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	// Initialize database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")

	// Scoring channels: the built-in pair plus whatever channels.yaml enables.
	channels := []string{cfg.DefaultChannel, cfg.ExternalChannel}
	if chCfg, err := config.LoadChannels(); err != nil {
		log.Fatalf("Failed to load channel definitions: %v", err)
	} else if chCfg != nil {
		channels = append(channels, chCfg.EnabledNames()...)
	}

	// Content platform client, with an optional Redis metadata cache.
	platform := wiki.New(cfg.ContentAPIURL, wiki.NewRedisCache(cfg.RedisURL))

	// Admission queue and its maturity driver.
	queue := admission.New(cfg.AdmissionDelay)
	metrics.Init(queue)

	// Scoring pipeline.
	det := detector.New(platform, cfg.BackSearchDepth)
	cls := classifier.NewHTTP(cfg.ClassifierURL, cfg.RetrainEvery)
	var secondary pipeline.SecondaryScorer
	if s := classifier.NewSecondary(cfg.SecondaryURL); s != nil {
		secondary = s
	}
	dispatcher := pipeline.New(cfg, queue, platform, det, cls, secondary, database)

	bgCtx, bgCancel := context.WithCancel(ctx)
	dispatcher.Start(bgCtx)

	driver := admission.NewDriver(queue, cfg.PollInterval, dispatcher.Submit)
	go driver.Run(bgCtx)

	// Notification feed.
	consumer, err := feed.NewConsumer(cfg.NATSUrl, cfg.FeedSubject, queue, cfg.NewRIDAttempts)
	if err != nil {
		log.Fatalf("Failed to connect to notification feed: %v", err)
	}
	if err := consumer.Start(); err != nil {
		log.Fatalf("Failed to subscribe to notification feed: %v", err)
	}

	// Reviewer sessions and their ground-truth maintainer.
	mgr := session.NewManager(cfg, database, session.NewHydrator(platform))
	maintainer := jobs.NewMaintainer(mgr, platform, database, cfg.MaintainerInterval)
	go maintainer.Start(bgCtx)

	trainer := classifier.NewTrainer(cls)

	// HTTP surface.
	srv := server.New(cfg)
	srv.RegisterRoutes(database, mgr, trainer, channels)

	go func() {
		if err := srv.Start(); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	// Stop intake first, then drain: feed, driver and maintainer, worker
	// pool, sessions, HTTP.
	consumer.Close()
	bgCancel()
	dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mgr.CloseAll(shutdownCtx)
	trainer.Flush(shutdownCtx)

	if err := srv.Shutdown(); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
