package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/bits-mayank/quizmasters/internal/api/http"
	auth "github.com/bits-mayank/quizmasters/internal/auth/middleware"
	"github.com/bits-mayank/quizmasters/internal/config"
	"github.com/bits-mayank/quizmasters/internal/db"
	"github.com/bits-mayank/quizmasters/internal/export"
	"github.com/bits-mayank/quizmasters/internal/logging"
	"github.com/bits-mayank/quizmasters/internal/notify"
	"github.com/bits-mayank/quizmasters/internal/quiz"
	"github.com/bits-mayank/quizmasters/internal/rbac"
	"github.com/bits-mayank/quizmasters/internal/storage"
	syncx "github.com/bits-mayank/quizmasters/internal/sync"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogColor)

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	svc := quiz.NewService(
		store,
		store,
		time.Now,
		export.NewCSVExporter(bs),
		notify.NewLogNotifier(logger),
		syncx.NewEventLog(dbh, cfg.SiteID),
		logger,
	)

	authSvc := auth.NewAuthService(cfg.JWTSecret, cfg.JWTTTL)
	admin := auth.BootstrapAdmin{Username: cfg.AdminUser, PassHash: cfg.AdminPassHash}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, admin))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		pr.Route("/api", func(ar chi.Router) {
			// Student flow
			ar.With(rbac.Require("quiz:lookup")).
				Post("/quizzes/lookup", api.LookupQuizHandler(svc))
			ar.With(rbac.Require("attempt:enter")).
				Post("/quizzes/{quizID}/enter", api.EnterQuizHandler(svc))
			ar.With(rbac.Require("attempt:extra")).
				Put("/quizzes/{quizID}/extra", api.SaveExtraHandler(svc))
			ar.With(rbac.Require("attempt:answer")).
				Put("/quizzes/{quizID}/answers/{questionID}", api.SaveAnswerHandler(svc))
			ar.With(rbac.Require("attempt:suspicion")).
				Post("/quizzes/{quizID}/suspicion", api.RecordSuspicionHandler(svc))
			ar.With(rbac.Require("attempt:submit")).
				Post("/quizzes/{quizID}/submit", api.SubmitQuizHandler(svc))
			ar.With(rbac.RequireAny("attempt:result-own", "attempt:view-all")).
				Get("/quizzes/{quizID}/result", api.ResultHandler(svc))
			ar.With(rbac.RequireAny("artifact:download-own", "artifact:download")).
				Get("/quizzes/{quizID}/result/download", api.DownloadResultHandler(svc, bs))
			ar.With(rbac.Require("profile:view-own")).
				Get("/profile", api.ProfileHandler(svc))
			ar.With(rbac.Require("user:change_password")).
				Post("/users/change-password", api.ChangePasswordHandler(dbh))

			// Invigilator / admin surface
			ar.Route("/admin", func(adm chi.Router) {
				adm.With(rbac.Require("quiz:create")).
					Post("/quizzes", api.CreateQuizHandler(store))
				adm.With(rbac.Require("quiz:view")).
					Get("/quizzes", api.ListQuizzesHandler(store))
				adm.With(rbac.Require("quiz:view")).
					Get("/quizzes/{quizID}", api.GetQuizHandler(store))
				adm.With(rbac.Require("quiz:create")).
					Post("/quizzes/{quizID}/questions", api.AddQuestionsHandler(store))
				adm.With(rbac.Require("quiz:assign")).
					Post("/quizzes/{quizID}/assign", api.AssignAttemptsHandler(store))
				adm.With(rbac.Require("attempt:view-all")).
					Get("/quizzes/{quizID}/attempts", api.ListQuizAttemptsHandler(store))
				adm.With(rbac.Require("quiz:report")).
					Get("/quizzes/{quizID}/report", api.QuizReportHandler(svc))

				adm.With(rbac.Require("bank:import")).
					Post("/bank", api.ImportBankHandler(store))
				adm.With(rbac.Require("bank:list")).
					Get("/bank", api.ListBankHandler(store))
				adm.With(rbac.Require("bank:clone")).
					Post("/quizzes/{quizID}/bank-clone", api.CloneBankHandler(store))

				adm.With(rbac.Require("artifact:download")).
					Get("/artifacts/*", api.ArtifactHandler(bs))

				adm.With(rbac.Require("users:bulk_upsert")).
					Post("/users", api.BulkUpsertUsersHandler(dbh))
				adm.With(rbac.Require("users:list")).
					Get("/users", api.ListUsersHandler(dbh))
				adm.With(rbac.Require("users:update_role")).
					Put("/users/{userID}/role", api.AdminUpdateUserRoleHandler(dbh))
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	logger.Info("listening", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
