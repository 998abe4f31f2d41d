// Package devserver is a single-process sync server for development and
// testing. It speaks the same JSON protocol as the production backend but
// keeps all state in memory.
package devserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/common"
	"github.com/vblinov/daybook/internal/logging"
)

const tokenTTL = 24 * time.Hour

// Server holds the in-memory store and the credentials it accepts.
type Server struct {
	store     *Store
	jwtSecret []byte
	username  string
	password  string
	log       logging.Logger
}

func NewServer(jwtSecret []byte, username, password string, log logging.Logger) *Server {
	return &Server{
		store:     NewStore(),
		jwtSecret: jwtSecret,
		username:  username,
		password:  password,
		log:       log,
	}
}

// Router mounts the API. /api/health and /api/auth/login are public; the
// sync endpoints require a bearer token.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/sync/register-device", s.handleRegisterDevice)
			r.Get("/sync/changes", s.handleChanges)
			r.Post("/sync/push", s.handlePush)
			r.Post("/sync/resolve-conflict", s.handleResolveConflict)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	if req.Username != s.username || req.Password != s.password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   req.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}

	writeSuccess(w, map[string]any{"token": signed})
}

// requireAuth verifies the HS256 bearer token on protected routes.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if len(h) <= 7 || h[:7] != "Bearer " {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		_, err := jwt.Parse(h[7:], func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registerDeviceRequest struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	DeviceType string `json:"deviceType"`
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	s.store.RegisterDevice(req.DeviceID, req.DeviceName)
	s.log.Info(r.Context(), "device registered", "device_id", req.DeviceID, "device_name", req.DeviceName)
	writeSuccess(w, nil)
}

type changeDTO struct {
	EntityID string               `json:"entityId"`
	Action   models.Action        `json:"action"`
	Version  int64                `json:"version"`
	Data     *models.EntryPayload `json:"data,omitempty"`
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	since := time.Unix(0, 0).UTC()
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = t
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	if raw := r.URL.Query().Get("types"); raw != "" && !typesInclude(raw, common.EntityTypeEntry) {
		// The store only holds entries; any other type filter is empty.
		writeSuccess(w, map[string]any{"changes": []changeDTO{}})
		return
	}

	records := s.store.ChangesSince(since, limit)
	changes := make([]changeDTO, 0, len(records))
	for _, rec := range records {
		dto := changeDTO{EntityID: rec.ServerID, Version: rec.Version}
		if rec.Deleted {
			dto.Action = models.ActionDelete
		} else {
			dto.Action = models.ActionUpdate
			dto.Data = rec.Data
		}
		changes = append(changes, dto)
	}

	writeSuccess(w, map[string]any{"changes": changes})
}

func typesInclude(raw, want string) bool {
	for _, t := range strings.Split(raw, ",") {
		if strings.TrimSpace(t) == want {
			return true
		}
	}
	return false
}

type pushChangeDTO struct {
	EntityType string               `json:"entityType"`
	LocalID    string               `json:"localId"`
	Action     models.Action        `json:"action"`
	Version    int64                `json:"version"`
	Data       *models.EntryPayload `json:"data,omitempty"`
}

type pushRequest struct {
	DeviceID string          `json:"deviceId"`
	Changes  []pushChangeDTO `json:"changes"`
}

type pushResultDTO struct {
	Status   string       `json:"status"`
	ServerID string       `json:"serverId,omitempty"`
	Version  int64        `json:"version,omitempty"`
	Conflict *conflictDTO `json:"conflict,omitempty"`
}

type conflictDTO struct {
	ConflictID    string               `json:"conflictId"`
	ServerVersion int64                `json:"serverVersion"`
	LocalVersion  int64                `json:"localVersion"`
	ServerData    *models.EntryPayload `json:"serverData,omitempty"`
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}

	results := make([]pushResultDTO, len(req.Changes))
	for i, c := range req.Changes {
		out := s.store.Apply(c.LocalID, c.Action, c.Version, c.Data)
		if out.OK {
			results[i] = pushResultDTO{Status: "success", ServerID: out.ServerID, Version: out.Version}
			continue
		}
		results[i] = pushResultDTO{
			Status: "conflict",
			Conflict: &conflictDTO{
				ConflictID:    out.Conflict.ID,
				ServerVersion: out.Version,
				LocalVersion:  c.Version,
				ServerData:    out.Conflict.ServerData,
			},
		}
		s.log.Info(r.Context(), "push conflict",
			"local_id", c.LocalID, "client_version", c.Version, "server_version", out.Version)
	}

	writeSuccess(w, map[string]any{"results": results})
}

type resolveRequest struct {
	ConflictID string               `json:"conflictId"`
	Resolution models.Resolution    `json:"resolution"`
	MergedData *models.EntryPayload `json:"mergedData,omitempty"`
}

func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request")
		return
	}
	switch req.Resolution {
	case models.ResolutionKeepLocal, models.ResolutionKeepServer, models.ResolutionMerged:
	default:
		writeError(w, http.StatusBadRequest, "unknown resolution")
		return
	}

	rec, ok := s.store.Resolve(req.ConflictID, req.Resolution, req.MergedData)
	if !ok {
		writeError(w, http.StatusNotFound, "conflict not found")
		return
	}

	var change *changeDTO
	if rec != nil {
		change = &changeDTO{EntityID: rec.ServerID, Version: rec.Version}
		if rec.Deleted {
			change.Action = models.ActionDelete
		} else {
			change.Action = models.ActionUpdate
			change.Data = rec.Data
		}
	}
	writeSuccess(w, map[string]any{"change": change})
}

type responseEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(responseEnvelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(responseEnvelope{Success: false, Error: msg})
}
