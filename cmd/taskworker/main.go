package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/cache"
	"github.com/onequiz/onequiz/internal/config"
	"github.com/onequiz/onequiz/internal/db"
	"github.com/onequiz/onequiz/internal/email"
	"github.com/onequiz/onequiz/internal/lib/slogcustom"
	"github.com/onequiz/onequiz/internal/quiz"
	"github.com/onequiz/onequiz/internal/tasks"
)

// orphanAge is how long a RUNNING task may sit before startup requeues it as
// abandoned by a dead worker.
const orphanAge = 30 * time.Minute

func main() {
	once := flag.Bool("once", false, "run a single batch and exit (cron mode)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.FromEnv()

	logger := slog.New(slogcustom.NewCustomHandler(os.Stdout, slog.LevelInfo))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)
	users := auth.NewSQLUserStore(dbh)
	taskStore := tasks.NewSQLStore(dbh)

	tokens := auth.NewTokenSource(cfg.AuthSecret)

	var sender email.Sender = &email.LogSender{Log: logger}
	if cfg.SMTPAddr != "" {
		host, _, err := net.SplitHostPort(cfg.SMTPAddr)
		if err != nil {
			host = cfg.SMTPAddr
		}
		sender = email.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, host)
	}

	// The worker marks inline; enqueueing from inside a task handler would
	// just bounce the work back onto this queue.
	svc := quiz.NewService(store, cache.New(), quiz.WithLogger(logger))
	registry := tasks.NewRegistry()
	tasks.RegisterDefaults(registry, svc, users, tokens, sender, cfg.EmailFrom)

	runner := tasks.NewRunner(taskStore, registry, tasks.WithRunnerLogger(logger))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runner.RecoverOrphans(runCtx, orphanAge); err != nil {
		logger.Error("recover orphans", "err", err)
	}
	if err := runner.Run(runCtx, *once); err != nil {
		logger.Error("worker exited with error", "err", err)
		os.Exit(1)
	}
}
