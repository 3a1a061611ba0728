package app

import (
	"net/http"

	"bizflow/internal/app/apiresp"
	"bizflow/internal/app/observability"
	"bizflow/internal/assessment"
	"bizflow/internal/audit"
	"bizflow/internal/auth"
	"bizflow/internal/blog"
	"bizflow/internal/cache"
	"bizflow/internal/casestudy"
	"bizflow/internal/chatbot"
	"bizflow/internal/db"
	"bizflow/internal/events"
	"bizflow/internal/health"
	"bizflow/internal/lead"
	"bizflow/internal/logger"
	"bizflow/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// Deps are the process-wide handles the router wires services from. Redis
// and Events are optional.
type Deps struct {
	Config Config
	DB     *sqlx.DB
	Redis  *redis.Client
	Events events.Publisher
	Health *health.Checker
	Logger *logger.Logger
}

type siteConfig struct {
	SiteURL string `json:"siteUrl"`
	AnonKey string `json:"anonKey"`
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	pub := deps.Events
	if pub == nil {
		pub = events.Nop{}
	}
	checker := deps.Health
	if checker == nil {
		checker = health.NewChecker(log, health.Component{Name: "db", Healther: dbHealther(deps.DB)})
	}

	var recorder audit.Recorder = audit.Nop{}
	auditLog := audit.New(deps.DB, log)
	if deps.DB != nil {
		recorder = auditLog
	}

	authSvc := auth.NewService(deps.DB, auth.ServiceConfig{Secret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}, log)
	authHandler := auth.NewHandler(authSvc)

	leadSvc := lead.NewService(deps.DB, lead.Deps{Events: pub, Audit: recorder, Logger: log})
	leadHandler := lead.NewHandler(leadSvc)

	assessmentSvc := assessment.NewService(deps.DB, assessment.Deps{
		Cache:  cache.New(deps.Redis, "form", cfg.FormCacheTTL, log),
		Events: pub,
		Audit:  recorder,
		Leads:  leadSvc,
		Logger: log,
	})
	assessmentHandler := assessment.NewHandler(assessmentSvc)

	blogHandler := blog.NewHandler(blog.NewService(deps.DB, blog.Deps{Events: pub, Audit: recorder, Logger: log}))
	caseHandler := casestudy.NewHandler(casestudy.NewService(deps.DB, casestudy.Deps{Events: pub, Audit: recorder, Logger: log}))
	chatHandler := chatbot.NewHandler(chatbot.NewService(chatbot.ServiceConfig{
		DB:         deps.DB,
		WebhookURL: cfg.ChatbotWebhookURL,
		Logger:     log,
	}))
	reportHandler := report.NewHandler(report.NewService(deps.DB, log))
	auditHandler := audit.NewHandler(auditLog)

	collector := observability.NewCollector(deps.DB, log)
	limiter := NewLimiter(cfg.RateLimitPerMin, deps.Redis)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	r.Get("/healthz", checker.Handler)
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter, log))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/config", func(w http.ResponseWriter, r *http.Request) {
			apiresp.WriteData(w, r, http.StatusOK, siteConfig{SiteURL: cfg.SiteURL, AnonKey: cfg.DatabaseAnonKey})
		})
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/logout", authHandler.Logout)
		api.With(authHandler.RequireAuth).Get("/auth/me", authHandler.Me)

		api.Group(func(public chi.Router) {
			public.Use(authHandler.OptionalAuth)

			public.Get("/assessments/forms", assessmentHandler.ListForms)
			public.Get("/assessments/forms/{id}", assessmentHandler.GetForm)
			public.Post("/assessments/submissions", assessmentHandler.Submit)
			public.Post("/assessments/score", assessmentHandler.Score)
			public.Post("/assessments/business", assessmentHandler.CreateBusinessAssessment)

			public.Post("/leads", leadHandler.Create)
			public.Post("/newsletter", leadHandler.Subscribe)

			public.Get("/blog/posts", blogHandler.ListPublished)
			public.Get("/blog/posts/{slug}", blogHandler.GetBySlug)
			public.Get("/blog/posts/{slug}/related", blogHandler.Related)
			public.Get("/blog/categories", blogHandler.ListCategories)
			public.Get("/blog/tags", blogHandler.ListTags)

			public.Get("/case-studies", caseHandler.ListPublished)
			public.Get("/case-studies/industries", caseHandler.ListIndustries)
			public.Get("/case-studies/{slug}", caseHandler.GetBySlug)

			public.Post("/chatbot", chatHandler.Reply)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(authHandler.RequireAuth)
			admin.Use(authHandler.RequireRoles(auth.RoleAdmin))

			admin.Post("/assessments/forms", assessmentHandler.CreateForm)
			admin.Get("/assessments/forms/template", assessmentHandler.Template)
			admin.Post("/assessments/forms/bulk-status", assessmentHandler.BulkUpdateStatus)
			admin.Put("/assessments/forms/{id}", assessmentHandler.ReplaceForm)
			admin.Patch("/assessments/forms/{id}", assessmentHandler.PatchForm)
			admin.Delete("/assessments/forms/{id}", assessmentHandler.DeleteForm)
			admin.Post("/assessments/forms/{id}/publish", assessmentHandler.PublishForm)
			admin.Post("/assessments/forms/{id}/commands", assessmentHandler.EditForm)
			admin.Post("/assessments/forms/{id}/preview-logic", assessmentHandler.PreviewLogic)
			admin.Get("/assessments/submissions", assessmentHandler.ListSubmissions)

			admin.Get("/admin/dashboard", reportHandler.Dashboard)
			admin.Get("/admin/audit-logs", auditHandler.List)

			admin.Get("/admin/leads", leadHandler.List)
			admin.Get("/admin/leads/export", leadHandler.Export)
			admin.Post("/admin/leads/import", leadHandler.Import)
			admin.Post("/admin/leads/bulk-status", leadHandler.BulkUpdateStatus)
			admin.Get("/admin/leads/{id}", leadHandler.Get)
			admin.Patch("/admin/leads/{id}/status", leadHandler.UpdateStatus)
			admin.Delete("/admin/leads/{id}", leadHandler.Delete)
			admin.Get("/admin/newsletter", leadHandler.ListSubscriptions)

			admin.Get("/admin/blog/posts", blogHandler.ListAll)
			admin.Post("/admin/blog/posts", blogHandler.Create)
			admin.Post("/admin/blog/posts/bulk-status", blogHandler.BulkChangeStatus)
			admin.Get("/admin/blog/posts/{id}", blogHandler.GetByID)
			admin.Patch("/admin/blog/posts/{id}", blogHandler.Update)
			admin.Delete("/admin/blog/posts/{id}", blogHandler.Delete)
			admin.Put("/admin/blog/posts/{id}/tags", blogHandler.SetTags)
			admin.Post("/admin/blog/posts/{id}/status", blogHandler.ChangeStatus)
			admin.Post("/admin/blog/categories", blogHandler.CreateCategory)
			admin.Delete("/admin/blog/categories/{id}", blogHandler.DeleteCategory)

			admin.Get("/admin/case-studies", caseHandler.ListAll)
			admin.Post("/admin/case-studies", caseHandler.Create)
			admin.Post("/admin/case-studies/bulk-publish", caseHandler.BulkPublish)
			admin.Get("/admin/case-studies/{id}", caseHandler.Get)
			admin.Patch("/admin/case-studies/{id}", caseHandler.Update)
			admin.Delete("/admin/case-studies/{id}", caseHandler.Delete)
			admin.Post("/admin/case-studies/{id}/status", caseHandler.ChangeStatus)

			admin.Get("/admin/chatbot/history", chatHandler.History)
		})
	})

	return r
}

func dbHealther(conn *sqlx.DB) health.Healther {
	if conn == nil {
		return nil
	}
	return db.Healther{DB: conn}
}
