// Package leads provides the lead intake and qualification bounded context module.
package leads

import (
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/leads/repository"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the leads module with its dependencies.
func NewModule(pool *pgxpool.Pool, engager Engager, pol *policy.Policy, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	service := NewService(repo, engager, pol, bus, log)
	return &Module{service: service, handler: NewHandler(service)}
}

// Service exposes the lead service for webhook intake wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	group.GET("", m.handler.HandleListLeads)
	group.GET("/:leadId", m.handler.HandleGetLead)
	group.GET("/:leadId/history", m.handler.HandleLeadHistory)
	group.POST("/:leadId/requalify", m.handler.HandleRequalify)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
