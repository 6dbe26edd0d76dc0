package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"safepulse/internal/logging"
	"safepulse/internal/models"
)

const maxWatchersPerUser = 10

// LiveHub fans merged location updates out to websocket watchers, keyed by
// the user being watched. It implements alert.Live.
type LiveHub struct {
	watchers map[string]map[*websocket.Conn]bool // user id -> set of connections
	mutex    sync.Mutex
	logger   *logging.Logger
}

// NewLiveHub initializes an empty hub.
func NewLiveHub(logger *logging.Logger) *LiveHub {
	return &LiveHub{
		watchers: make(map[string]map[*websocket.Conn]bool),
		logger:   logger,
	}
}

// AddWatcher registers a websocket connection watching a user's location.
func (h *LiveHub) AddWatcher(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.watchers[userID]; !exists {
		h.watchers[userID] = make(map[*websocket.Conn]bool)
	}
	if len(h.watchers[userID]) >= maxWatchersPerUser {
		h.logger.Warnf("Max watchers reached for user %s", userID)
		return
	}
	h.watchers[userID][conn] = true
	h.logger.Infof("Added watcher for user %s (total: %d)", userID, len(h.watchers[userID]))
}

// RemoveWatcher drops a websocket connection.
func (h *LiveHub) RemoveWatcher(userID string, conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if conns, exists := h.watchers[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.watchers, userID)
		}
		h.logger.Infof("Removed watcher for user %s (remaining: %d)", userID, len(conns))
	}
}

// BroadcastLocation sends a merged location update to every watcher of the
// user. Dead connections are dropped on write failure.
func (h *LiveHub) BroadcastLocation(userID string, upd models.LocationUpdate) {
	payload, err := json.Marshal(upd)
	if err != nil {
		h.logger.Errorf("Failed to encode location update for user %s: %v", userID, err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	conns, exists := h.watchers[userID]
	if !exists {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Errorf("Failed to send location update for user %s: %v", userID, err)
			conn.Close()
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.watchers, userID)
	}
}
