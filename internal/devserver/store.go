package devserver

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vblinov/daybook/internal/client/models"
)

// record is one server-side entry. Version advances on every accepted write;
// a deleted record stays around as a tombstone so pulls can propagate the
// delete.
type record struct {
	ServerID  string
	LocalID   string
	Version   int64
	Data      *models.EntryPayload
	Deleted   bool
	UpdatedAt time.Time
}

// conflict is an unresolved divergence reported to a client at push time.
type conflict struct {
	ID         string
	ServerID   string
	LocalData  *models.EntryPayload
	ServerData *models.EntryPayload
}

// Store is the in-memory state of the development server. Good enough for
// one process and the integration tests; nothing survives a restart.
type Store struct {
	mu        sync.Mutex
	byServer  map[string]*record
	byLocal   map[string]string // local id -> server id
	conflicts map[string]*conflict
	devices   map[string]string // device id -> name
	now       func() time.Time
}

func NewStore() *Store {
	return &Store{
		byServer:  make(map[string]*record),
		byLocal:   make(map[string]string),
		conflicts: make(map[string]*conflict),
		devices:   make(map[string]string),
		now:       time.Now,
	}
}

func (s *Store) RegisterDevice(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[id] = name
}

// ChangesSince returns records updated after since, oldest first, up to
// limit.
func (s *Store) ChangesSince(since time.Time, limit int) []*record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*record
	for _, r := range s.byServer {
		if r.UpdatedAt.After(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type applyOutcome struct {
	OK       bool
	ServerID string
	Version  int64
	Conflict *conflict
}

// Apply runs one pushed change under optimistic concurrency: a write is
// accepted only when the client's version is ahead of the server's, meaning
// the client edited on top of the latest state it had. Anything else is a
// conflict for the client to resolve.
func (s *Store) Apply(localID string, action models.Action, version int64, data *models.EntryPayload) applyOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	serverID, known := s.byLocal[localID]
	if !known {
		if action == models.ActionDelete {
			// Delete of something we never saw: accept as a no-op.
			return applyOutcome{OK: true, ServerID: localID, Version: version}
		}
		serverID = uuid.NewString()
		s.byLocal[localID] = serverID
		s.byServer[serverID] = &record{
			ServerID:  serverID,
			LocalID:   localID,
			Version:   version,
			Data:      withServerID(data, serverID),
			UpdatedAt: s.now().UTC(),
		}
		return applyOutcome{OK: true, ServerID: serverID, Version: version}
	}

	r := s.byServer[serverID]
	if version <= r.Version {
		c := &conflict{
			ID:         uuid.NewString(),
			ServerID:   serverID,
			LocalData:  data,
			ServerData: r.Data,
		}
		s.conflicts[c.ID] = c
		return applyOutcome{OK: false, ServerID: serverID, Version: r.Version, Conflict: c}
	}

	r.Version = version
	r.UpdatedAt = s.now().UTC()
	if action == models.ActionDelete {
		r.Deleted = true
		r.Data = nil
	} else {
		r.Data = withServerID(data, serverID)
	}
	return applyOutcome{OK: true, ServerID: serverID, Version: version}
}

// Resolve settles a previously reported conflict and returns the record as
// it stands afterwards. keep_local and merged overwrite the server copy with
// the winning content at a bumped version; keep_server leaves the server
// copy alone.
func (s *Store) Resolve(conflictID string, resolution models.Resolution, merged *models.EntryPayload) (*record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conflicts[conflictID]
	if !ok {
		return nil, false
	}
	delete(s.conflicts, conflictID)

	r, ok := s.byServer[c.ServerID]
	if !ok {
		return nil, true
	}
	if resolution == models.ResolutionKeepServer {
		return r, true
	}

	newData := merged
	if newData == nil {
		newData = c.LocalData
	}
	r.Version++
	r.Data = withServerID(newData, r.ServerID)
	r.Deleted = newData == nil
	r.UpdatedAt = s.now().UTC()
	return r, true
}

func withServerID(p *models.EntryPayload, serverID string) *models.EntryPayload {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ServerID = serverID
	return &cp
}
