// Package webhook provides the public intake bounded context module.
package webhook

import (
	apphttp "outreach_backend/internal/http"
	"outreach_backend/platform/httpkit"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the webhook module with its dependencies.
func NewModule(pool *pgxpool.Pool, intaker LeadIntaker, responses ResponseRecorder, val *validator.Validator) *Module {
	repo := NewRepository(pool)
	handler := NewHandler(intaker, responses, repo, val)
	return &Module{handler: handler, repo: repo}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public intake endpoints (API key auth, no JWT), rate limited per IP.
	public := ctx.V1.Group("/webhook")
	public.Use(ctx.WebhookLimiter.RateLimit())
	public.Use(APIKeyAuth(m.repo))
	public.POST("/leads", m.handler.HandleLeadSubmission)
	public.POST("/responses", m.handler.HandleResponseNotification)

	// Key management (JWT auth, admin only).
	keys := ctx.Protected.Group("/webhook/keys")
	keys.Use(httpkit.RequireRole("admin"))
	keys.POST("", m.handler.HandleCreateKey)
	keys.GET("", m.handler.HandleListKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
