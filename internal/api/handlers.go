package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"safepulse/internal/alert"
	"safepulse/internal/logging"
	"safepulse/internal/models"
)

// Engine is the coordinator surface the API drives.
type Engine interface {
	Trigger(ctx context.Context, in models.IncidentTrigger) (uuid.UUID, error)
	Resolve(ctx context.Context, id uuid.UUID) error
	MergeLocation(ctx context.Context, userID string, upd models.LocationUpdate) error
}

// History reads persisted alert, contact, and audit state.
type History interface {
	GetAlert(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	AlertsByUserID(ctx context.Context, userID string, limit, offset int) ([]models.Alert, error)
	ContactsByUserID(ctx context.Context, userID string) ([]models.TrustedContact, error)
	TransitionsByAlertID(ctx context.Context, alertID uuid.UUID) ([]models.Transition, error)
	AppendLocation(ctx context.Context, upd models.LocationUpdate) error
	LocationsSince(ctx context.Context, userID string, since time.Time) ([]models.LocationUpdate, error)
}

type Handler struct {
	engine  Engine
	history History
	hub     *LiveHub
	logger  *logging.Logger

	upgrader websocket.Upgrader
}

func NewHandler(engine Engine, history History, hub *LiveHub, logger *logging.Logger) *Handler {
	return &Handler{
		engine:  engine,
		history: history,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type triggerRequest struct {
	UserID    string    `json:"user_id" binding:"required"`
	Reason    string    `json:"reason"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

func (h *Handler) CreateTrigger(c *gin.Context) {
	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid trigger request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	reason := models.TriggerReason(req.Reason)
	if reason != models.ReasonAutomatic {
		reason = models.ReasonManual
	}

	id, err := h.engine.Trigger(c.Request.Context(), models.IncidentTrigger{
		UserID: req.UserID,
		Reason: reason,
		Location: models.Location{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Timestamp: req.Timestamp,
		},
		Note: req.Note,
	})
	if err != nil {
		if errors.Is(err, alert.ErrNoRecipients) {
			h.logger.Errorf("Trigger for user %s resolved no recipients", req.UserID)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No recipients resolved"})
			return
		}
		h.logger.Errorf("Trigger for user %s failed: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create alert"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"alert_id": id.String()})
}

func (h *Handler) PushLocation(c *gin.Context) {
	var upd models.LocationUpdate
	if err := c.ShouldBindJSON(&upd); err != nil || upd.UserID == "" {
		h.logger.Errorf("Invalid location push: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if upd.Timestamp.IsZero() {
		upd.Timestamp = time.Now()
	}

	if err := h.history.AppendLocation(c.Request.Context(), upd); err != nil {
		h.logger.Errorf("Appending location for user %s failed: %v", upd.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record location"})
		return
	}

	merged := true
	if err := h.engine.MergeLocation(c.Request.Context(), upd.UserID, upd); err != nil {
		if !errors.Is(err, alert.ErrUnknownAlert) {
			h.logger.Errorf("Merging location for user %s failed: %v", upd.UserID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to merge location"})
			return
		}
		merged = false
	}

	c.JSON(http.StatusAccepted, gin.H{"merged": merged})
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	if err := h.engine.Resolve(c.Request.Context(), id); err != nil {
		if errors.Is(err, alert.ErrUnknownAlert) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.logger.Errorf("Resolving alert %s failed: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve alert"})
		return
	}

	h.logger.Infof("Resolved alert %s", id)
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

func (h *Handler) GetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	a, err := h.history.GetAlert(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		h.logger.Errorf("Failed to get alert %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alert"})
		return
	}

	c.JSON(http.StatusOK, a)
}

func (h *Handler) GetAlertTransitions(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}

	transitions, err := h.history.TransitionsByAlertID(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get transitions for alert %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get transitions"})
		return
	}

	c.JSON(http.StatusOK, transitions)
}

func (h *Handler) GetAlertsByUserID(c *gin.Context) {
	userID := c.Param("user_id")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	alerts, err := h.history.AlertsByUserID(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Errorf("Failed to get alerts for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get alerts"})
		return
	}

	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) GetContactsByUserID(c *gin.Context) {
	userID := c.Param("user_id")
	contacts, err := h.history.ContactsByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to get contacts for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contacts"})
		return
	}

	c.JSON(http.StatusOK, contacts)
}

// GetLocationsByUserID returns a user's location feed entries newer than the
// optional since parameter (RFC 3339), oldest first.
func (h *Handler) GetLocationsByUserID(c *gin.Context) {
	userID := c.Param("user_id")
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since timestamp"})
			return
		}
		since = t
	}

	locations, err := h.history.LocationsSince(c.Request.Context(), userID, since)
	if err != nil {
		h.logger.Errorf("Failed to get locations for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get locations"})
		return
	}

	c.JSON(http.StatusOK, locations)
}

// WatchLive upgrades to a websocket and streams the user's merged location
// updates until the client disconnects.
func (h *Handler) WatchLive(c *gin.Context) {
	userID := c.Param("user_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Websocket upgrade failed for user %s: %v", userID, err)
		return
	}

	h.hub.AddWatcher(userID, conn)
	defer func() {
		h.hub.RemoveWatcher(userID, conn)
		conn.Close()
	}()

	// reads only detect disconnect; watchers never send payloads
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
