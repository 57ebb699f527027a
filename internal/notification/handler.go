package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"outreach_backend/internal/notification/repository"
	"outreach_backend/platform/httpkit"
)

// Handler handles notification HTTP requests.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// NotificationResponse is the API representation of a notification.
type NotificationResponse struct {
	ID         uuid.UUID  `json:"id"`
	Kind       string     `json:"kind"`
	CampaignID *uuid.UUID `json:"campaignId,omitempty"`
	ContactID  *uuid.UUID `json:"contactId,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// HandleListUnread returns unread notifications, newest first.
// GET /api/v1/notifications
func (h *Handler) HandleListUnread(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.service.Unread(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]NotificationResponse, len(items))
	for i, item := range items {
		out[i] = NotificationResponse{
			ID:         item.ID,
			Kind:       item.Kind,
			CampaignID: item.CampaignID,
			ContactID:  item.ContactID,
			Title:      item.Title,
			Body:       item.Body,
			CreatedAt:  item.CreatedAt,
		}
	}
	httpkit.OK(c, out)
}

// HandleMarkRead marks a notification as read.
// POST /api/v1/notifications/:notificationId/read
func (h *Handler) HandleMarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification ID", nil)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httpkit.Error(c, http.StatusNotFound, "notification not found", nil)
			return
		}
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, gin.H{"status": "read"})
}
