package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/careslot/booking-engine/internal/booking"
	"github.com/careslot/booking-engine/internal/config"
	"github.com/careslot/booking-engine/internal/db"
	"github.com/careslot/booking-engine/internal/notify"
	redisclient "github.com/careslot/booking-engine/internal/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s cron=%q", cfg.Env, cfg.ReminderCron)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	repo := booking.NewPgRepository(pgPool)
	// Dispatch only reads and flips reminders; the booking lock is not
	// needed here.
	svc := booking.NewService(repo, redisclient.NopLocker{}, cfg)

	var notifier notify.Notifier
	if cfg.SMTPHost != "" {
		notifier = notify.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
		log.Printf("email notifier configured host=%s from=%s", cfg.SMTPHost, cfg.SMTPFrom)
	} else {
		notifier = notify.LogNotifier{}
		log.Println("no SMTP configured, reminders are logged only")
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.ReminderCron, func() {
		runOnce(rootCtx, svc, notifier, cfg.WorkerInterval)
	})
	if err != nil {
		log.Fatalf("failed to register cron entry: %v", err)
	}

	c.Start()
	log.Println("reminder dispatch schedule started")

	<-rootCtx.Done()
	log.Println("shutdown signal received, stopping reminder worker")

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(cfg.ShutdownTimeout):
		log.Println("timed out waiting for running dispatch to finish")
	}
}

func runOnce(ctx context.Context, svc *booking.Service, notifier notify.Notifier, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	sent, err := svc.DispatchDueReminders(runCtx, start, notifier.Send)
	if err != nil {
		log.Printf("reminder dispatch error: %v", err)
		return
	}
	log.Printf("reminder dispatch complete sent=%d in %s", sent, time.Since(start))
}
