package ingest

import (
	"log/slog"
	"sync"
)

// DefaultDeviceID is the placeholder device identity used until a device
// announces itself on the status topic.
const DefaultDeviceID = "ESP32_001"

// SessionSnapshot is a read-only view of the registry state.
type SessionSnapshot struct {
	SessionID int64  `json:"sessionId"`
	Active    bool   `json:"active"`
	UserAlias string `json:"userAlias,omitempty"`
	DeviceID  string `json:"deviceId"`
}

// SessionRegistry holds the identity of the currently active measurement
// session. At most one session is active at a time from the pipeline's point
// of view; the registry is a single state cell, not a per-device map. State
// is in-process only and lost on restart: an active session orphaned in the
// store is not auto-resumed.
type SessionRegistry struct {
	mu        sync.RWMutex
	sessionID int64
	active    bool
	userAlias string
	deviceID  string
	logger    *slog.Logger
}

// NewSessionRegistry creates a registry with the default device identity.
func NewSessionRegistry(logger *slog.Logger) *SessionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionRegistry{
		deviceID: DefaultDeviceID,
		logger:   logger,
	}
}

// Start binds the registry to a session. The pointer is overwritten
// unconditionally; starting over an already-active session is allowed and
// logged.
func (r *SessionRegistry) Start(sessionID int64, userAlias string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		r.logger.Warn("starting session over active session",
			"previous_session_id", r.sessionID,
			"session_id", sessionID)
	}

	r.sessionID = sessionID
	r.active = true
	r.userAlias = userAlias

	r.logger.Info("session started", "session_id", sessionID, "user_alias", userAlias)
}

// Stop clears the active session. It is an idempotent no-op when no session
// is set. The device identity is retained.
func (r *SessionRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}

	r.logger.Info("session stopped", "session_id", r.sessionID)
	r.sessionID = 0
	r.active = false
	r.userAlias = ""
}

// Current returns a snapshot of the registry state. Safe to call from any
// handler at any time.
func (r *SessionRegistry) Current() SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return SessionSnapshot{
		SessionID: r.sessionID,
		Active:    r.active,
		UserAlias: r.userAlias,
		DeviceID:  r.deviceID,
	}
}

// SetDeviceID records the device identity announced on the status topic. The
// last device to announce itself becomes the implicit target for session
// starts that omit an explicit device id.
func (r *SessionRegistry) SetDeviceID(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deviceID = deviceID
}
