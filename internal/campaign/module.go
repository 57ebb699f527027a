// Package campaign provides the campaign orchestration bounded context module.
package campaign

import (
	"outreach_backend/internal/campaign/repository"
	"outreach_backend/internal/engagement"
	enrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the campaign bounded context module implementing http.Module.
type Module struct {
	orch    *Orchestrator
	handler *Handler
}

// NewModule creates and initializes the campaign module: engagement machine,
// orchestrator and HTTP handler.
func NewModule(pool *pgxpool.Pool, provider engagement.Provider, composer engagement.Composer,
	pol *policy.Policy, bus events.Bus, locker *Locker, cfg config.DispatchConfig,
	val *validator.Validator, log *logger.Logger) *Module {

	campaignRepo := repository.New(pool)
	engagementRepo := enrepo.New(pool)
	machine := engagement.NewMachine(engagementRepo, provider, composer, pol, bus, log, cfg.GetDispatchTimeout())
	orch := NewOrchestrator(campaignRepo, engagementRepo, machine, pol, bus, locker, log)
	handler := NewHandler(orch, campaignRepo, engagementRepo, val, log)

	return &Module{orch: orch, handler: handler}
}

// Orchestrator exposes the orchestrator for scheduler and webhook wiring.
func (m *Module) Orchestrator() *Orchestrator {
	return m.orch
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "campaign"
}

// RegisterRoutes mounts campaign routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	campaigns := ctx.Protected.Group("/campaigns")
	campaigns.GET("", m.handler.HandleGetCampaignByDomain)
	campaigns.GET("/:campaignId", m.handler.HandleGetCampaign)
	campaigns.GET("/:campaignId/timeline", m.handler.HandleTimeline)
	campaigns.POST("/:campaignId/won", m.handler.HandleMarkWon)
	campaigns.POST("/:campaignId/lost", m.handler.HandleMarkLost)
	campaigns.POST("/:campaignId/cancel", m.handler.HandleCancel)

	ctx.Protected.POST("/engagements/:engagementId/response", m.handler.HandleRecordResponse)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
