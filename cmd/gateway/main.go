package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/cache"
	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/eventlog"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/groups"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.FromEnv()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	dir := groups.NewDirectory(dbh)
	content := catalog.NewSQLCatalog(dbh)
	events := eventlog.NewRepo(dbh, cfg.SiteID)
	users := auth.NewUsers(dbh)

	// --- Catalog cache (optional) ---
	var quizCatalog quiz.Catalog = content
	var invalidator api.Invalidator
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("redis %s unreachable, catalog reads will fall through: %v", cfg.RedisAddr, err)
		}
		cached := cache.NewCatalog(content, rdb, cfg.CatalogCacheTTL, logger)
		quizCatalog, invalidator = cached, cached
	}

	deps := quiz.Deps{
		Store:        quiz.NewSQLStore(dbh, db.Driver(cfg.DBDriver)),
		Groups:       dir,
		Associations: dir,
		Catalog:      quizCatalog,
		Validator:    grading.NewValidator(),
		Users:        dir,
		Events:       events,
		Clock:        quiz.SystemClock{},
		Logger:       logger,
		HostName:     cfg.HostName,
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, users))
	}

	// Protected API (JWT → stored role → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, cfg.Mode == config.ModeOffline))

		api.MountQuiz(pr, api.Services{
			Assignments: quiz.NewAssignmentService(deps),
			Attempts:    quiz.NewAttemptService(deps),
			Answers:     quiz.NewAnswerRecorder(deps),
			Names:       dir,
			Logger:      logger,
		})
		api.MountDirectory(pr, api.Directory{
			DB:      dbh,
			Groups:  dir,
			Users:   users,
			Content: content,
			Cache:   invalidator,
			Events:  events,
			Logger:  logger,
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (mode=%s, db=%s, cache=%t)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver, cfg.RedisAddr != "")
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
