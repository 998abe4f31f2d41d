package api

import "github.com/vblinov/daybook/internal/client/models"

// envelope is the standard response wrapper used by every sync endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RegisterDeviceRequest is the body of POST /api/sync/register-device.
type RegisterDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	DeviceType string `json:"deviceType"`
}

// Change is one server-side change returned by GET /api/sync/changes.
// Data is nil for deletes.
type Change struct {
	EntityID string               `json:"entityId"`
	Action   models.Action        `json:"action"`
	Version  int64                `json:"version"`
	Data     *models.EntryPayload `json:"data,omitempty"`
}

type changesEnvelope struct {
	envelope
	Data struct {
		Changes []Change `json:"changes"`
	} `json:"data"`
}

// PushChange is one queued local mutation inside a push batch.
type PushChange struct {
	EntityType string               `json:"entityType"`
	LocalID    string               `json:"localId"`
	Action     models.Action        `json:"action"`
	Version    int64                `json:"version"`
	Data       *models.EntryPayload `json:"data,omitempty"`
}

// PushRequest is the body of POST /api/sync/push.
type PushRequest struct {
	DeviceID string       `json:"deviceId"`
	Changes  []PushChange `json:"changes"`
}

// Push result statuses. Anything else counts as a retryable error.
const (
	PushStatusSuccess  = "success"
	PushStatusConflict = "conflict"
)

// ConflictInfo is the server's description of a version conflict.
type ConflictInfo struct {
	ConflictID    string               `json:"conflictId"`
	ServerVersion int64                `json:"serverVersion"`
	LocalVersion  int64                `json:"localVersion"`
	ServerData    *models.EntryPayload `json:"serverData,omitempty"`
}

// PushResult is one per-item outcome, positionally aligned with the
// request's changes array.
type PushResult struct {
	Status   string        `json:"status"`
	ServerID string        `json:"serverId,omitempty"`
	Version  int64         `json:"version,omitempty"`
	Conflict *ConflictInfo `json:"conflict,omitempty"`
}

type pushEnvelope struct {
	envelope
	Data struct {
		Results []PushResult `json:"results"`
	} `json:"data"`
}

// ResolveConflictRequest is the body of POST /api/sync/resolve-conflict.
type ResolveConflictRequest struct {
	ConflictID string               `json:"conflictId"`
	Resolution models.Resolution    `json:"resolution"`
	MergedData *models.EntryPayload `json:"mergedData,omitempty"`
}

// The resolve endpoint answers with the post-resolution record so the client
// can line up its local copy without waiting for the next pull.
type resolveEnvelope struct {
	envelope
	Data struct {
		Change *Change `json:"change,omitempty"`
	} `json:"data"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginEnvelope struct {
	envelope
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}
