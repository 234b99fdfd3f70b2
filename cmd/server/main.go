package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/onequiz/onequiz/internal/api/http"
	"github.com/onequiz/onequiz/internal/auth"
	"github.com/onequiz/onequiz/internal/cache"
	"github.com/onequiz/onequiz/internal/config"
	"github.com/onequiz/onequiz/internal/db"
	"github.com/onequiz/onequiz/internal/email"
	"github.com/onequiz/onequiz/internal/lib/slogcustom"
	"github.com/onequiz/onequiz/internal/quiz"
	"github.com/onequiz/onequiz/internal/tasks"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	logger := slog.New(slogcustom.NewCustomHandler(os.Stdout, slog.LevelInfo))
	slog.SetDefault(logger)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)
	users := auth.NewSQLUserStore(dbh)
	taskStore := tasks.NewSQLStore(dbh)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)
	tokens := auth.NewTokenSource(cfg.AuthSecret)

	// --- Email ---
	var sender email.Sender = &email.LogSender{Log: logger}
	if cfg.SMTPAddr != "" {
		host, _, err := net.SplitHostPort(cfg.SMTPAddr)
		if err != nil {
			host = cfg.SMTPAddr
		}
		sender = email.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, host)
	}

	// --- Tasks + quiz service ---
	// The server only produces tasks; the worker binary consumes them. Both
	// register the same handler set, so task names line up by construction.
	registry := tasks.NewRegistry()
	queue := tasks.NewQueue(taskStore, registry)
	svc := quiz.NewService(store, cache.New(),
		quiz.WithEnqueuer(queue),
		quiz.WithLogger(logger),
	)
	svc.AsyncMarking = cfg.AsyncMarking
	tasks.RegisterDefaults(registry, svc, users, tokens, sender, cfg.EmailFrom)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public account surface.
	r.Post("/auth/register", api.RegisterHandler(users, queue, cfg.Domain, logger))
	r.Post("/auth/login", api.LoginHandler(users, authSvc))
	r.Get("/auth/activate", api.ActivateHandler(users, tokens))
	r.Post("/auth/password-reset", api.PasswordResetRequestHandler(users, queue, cfg.Domain, logger))
	r.Post("/auth/password-reset/confirm", api.PasswordResetConfirmHandler(users, tokens))

	// Protected API.
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Post("/quizzes", api.CreateQuizHandler(store))
		pr.Get("/quizzes", api.ListQuizzesHandler(store))
		pr.Get("/quizzes/{quizID}", api.GetQuizHandler(store))
		pr.Post("/quizzes/{quizID}/attempts", api.CommenceAttemptHandler(svc))

		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(svc))
		pr.Get("/attempts/{attemptID}/mode", api.PermissionModeHandler(svc))
		pr.Put("/attempts/{attemptID}/responses/{questionID}", api.SubmitResponseHandler(svc))
		pr.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(svc))
		pr.Post("/attempts/{attemptID}/marks", api.ManualMarkHandler(svc))
		pr.Get("/attempts/{attemptID}/results", api.ResultsHandler(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver, "async_marking", cfg.AsyncMarking)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
