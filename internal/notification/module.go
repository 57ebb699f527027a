// Package notification provides the operator notification bounded context module.
package notification

import (
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/notification/repository"
	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the notification bounded context module implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the notification module.
func NewModule(pool *pgxpool.Pool, emailCfg config.EmailConfig, escCfg config.EscalationConfig, log *logger.Logger) *Module {
	repo := repository.New(pool)
	service := NewService(repo, emailCfg, escCfg, log)
	return &Module{service: service, handler: NewHandler(service)}
}

// RegisterHandlers subscribes the module to domain events.
func (m *Module) RegisterHandlers(bus events.Bus) {
	m.service.RegisterHandlers(bus)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts notification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.handler.HandleListUnread)
	group.POST("/:notificationId/read", m.handler.HandleMarkRead)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
