package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	mw "studypal/internal/middleware"
	"studypal/internal/models"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps is everything the HTTP surface needs. Pages, when set, serves the
// guarded page prefixes; otherwise a small JSON stub answers for them.
type RouterDeps struct {
	Logger        *zap.Logger
	CORSOrigins   []string
	Authenticator *mw.Authenticator
	GuardRules    []mw.GuardRule
	DB            Pinger
	Pages         http.Handler

	Auth      *AuthHandler
	Goals     *GoalHandler
	Diary     *DiaryHandler
	StudyPath *StudyPathHandler
	Profiles  *ProfileHandler
	Chat      *ChatHandler
	Dashboard *DashboardHandler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", health(d.DB))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Post("/send-otp", d.Auth.SendOTP)
			a.Post("/verify-otp", d.Auth.VerifyOTP)
			a.Post("/signup", d.Auth.Signup)
			a.Post("/login", d.Auth.Login)
			a.Post("/logout", d.Auth.Logout)
			a.Get("/google", d.Auth.GoogleStart)
			a.Get("/google/callback", d.Auth.GoogleCallback)
			a.With(d.Authenticator.RequireAuth).Get("/me", d.Auth.Me)
		})

		api.Group(func(pr chi.Router) {
			pr.Use(d.Authenticator.RequireAuth)

			pr.Get("/dashboard", d.Dashboard.Get)
			pr.With(mw.RequireRole(models.RoleTeacher)).Get("/teacher/overview", d.Dashboard.Overview)

			pr.Get("/user-goals", d.Goals.List)
			pr.Post("/add-goal", d.Goals.Create)
			pr.Put("/update-goal-progress", d.Goals.UpdateProgress)
			pr.Delete("/delete-goal", d.Goals.Delete)

			pr.Get("/diary-entries", d.Diary.List)
			pr.Post("/save-diary-entry", d.Diary.Save)
			pr.Put("/diary-entries/{date}", d.Diary.Update)
			pr.Delete("/diary-entries/{date}", d.Diary.Delete)

			pr.Get("/study-path", d.StudyPath.Get)
			pr.Post("/study-path/topics", d.StudyPath.CreateTopic)
			pr.Put("/update-path", d.StudyPath.UpdatePath)

			pr.Get("/profile/{mode}", d.Profiles.Get)
			pr.Put("/profile/{mode}", d.Profiles.Put)

			pr.Post("/chat", d.Chat.Stream)
			pr.Post("/chat/{mode}", d.Chat.Reply)
		})
	})

	pages := d.Pages
	if pages == nil {
		pages = http.HandlerFunc(pageStub)
	}
	rules := d.GuardRules
	if rules == nil {
		rules = mw.DefaultGuardRules
	}
	r.Group(func(pg chi.Router) {
		pg.Use(d.Authenticator.RouteGuard(rules))
		for _, rule := range rules {
			pg.Handle(rule.Prefix, pages)
			pg.Handle(rule.Prefix+"/*", pages)
		}
	})
	return r
}

func pageStub(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"path": r.URL.Path}
	if c, ok := mw.ClaimsFrom(r.Context()); ok {
		body["role"] = string(c.Role)
	}
	writeBody(w, http.StatusOK, body)
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				writeBody(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeBody(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
