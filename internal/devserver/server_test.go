package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vblinov/daybook/internal/client/models"
	"github.com/vblinov/daybook/internal/logging"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s := NewServer([]byte("test-secret"), "dev", "dev", log)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, ts, "", "/api/auth/login", map[string]any{"username": "dev", "password": "dev"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	require.NotEmpty(t, body.Data.Token)
	return body.Data.Token
}

func postJSON(t *testing.T, ts *httptest.Server, token, path string, payload any) *http.Response {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestLogin_BadCredentials(t *testing.T) {
	_, ts := testServer(t)
	resp := postJSON(t, ts, "", "/api/auth/login", map[string]any{"username": "dev", "password": "wrong"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	_, ts := testServer(t)
	resp := postJSON(t, ts, "", "/api/sync/push", map[string]any{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2 := postJSON(t, ts, "garbage", "/api/sync/push", map[string]any{})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestHealth_NoAuth(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStore_ApplyCreateThenStaleUpdateConflicts(t *testing.T) {
	st := NewStore()

	out := st.Apply("local-1", models.ActionCreate, 1, &models.EntryPayload{ID: "local-1", Title: "a"})
	require.True(t, out.OK)
	require.NotEmpty(t, out.ServerID)
	assert.Equal(t, int64(1), out.Version)

	// A newer version from the same lineage is accepted.
	out2 := st.Apply("local-1", models.ActionUpdate, 2, &models.EntryPayload{ID: "local-1", Title: "b"})
	require.True(t, out2.OK)
	assert.Equal(t, out.ServerID, out2.ServerID)

	// A stale write (same or older version) conflicts.
	out3 := st.Apply("local-1", models.ActionUpdate, 2, &models.EntryPayload{ID: "local-1", Title: "c"})
	require.False(t, out3.OK)
	require.NotNil(t, out3.Conflict)
	assert.Equal(t, int64(2), out3.Version)
	assert.Equal(t, "b", out3.Conflict.ServerData.Title)
}

func TestStore_DeleteKeepsTombstoneForPulls(t *testing.T) {
	st := NewStore()
	before := time.Now().UTC().Add(-time.Second)

	out := st.Apply("local-1", models.ActionCreate, 1, &models.EntryPayload{ID: "local-1", Title: "a"})
	require.True(t, out.OK)
	out2 := st.Apply("local-1", models.ActionDelete, 2, nil)
	require.True(t, out2.OK)

	recs := st.ChangesSince(before, 10)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Deleted)
	assert.Equal(t, int64(2), recs[0].Version)
}

func TestStore_ResolveKeepLocalBumpsVersion(t *testing.T) {
	st := NewStore()

	st.Apply("local-1", models.ActionCreate, 1, &models.EntryPayload{ID: "local-1", Title: "server side"})
	stale := st.Apply("local-1", models.ActionUpdate, 1, &models.EntryPayload{ID: "local-1", Title: "client side"})
	require.False(t, stale.OK)

	rec, ok := st.Resolve(stale.Conflict.ID, models.ResolutionKeepLocal, nil)
	require.True(t, ok)
	require.NotNil(t, rec)
	assert.Equal(t, "client side", rec.Data.Title)
	assert.Equal(t, int64(2), rec.Version)

	_, ok = st.Resolve(stale.Conflict.ID, models.ResolutionKeepLocal, nil)
	assert.False(t, ok, "a conflict resolves at most once")
}

func TestPushEndpoint_PositionalResults(t *testing.T) {
	_, ts := testServer(t)
	token := login(t, ts)

	resp := postJSON(t, ts, token, "/api/sync/push", map[string]any{
		"deviceId": "dev-1",
		"changes": []map[string]any{
			{"entityType": "entry", "localId": "a", "action": "create", "version": 1,
				"data": map[string]any{"id": "a", "title": "one", "body": "x", "version": 1}},
			{"entityType": "entry", "localId": "b", "action": "create", "version": 1,
				"data": map[string]any{"id": "b", "title": "two", "body": "y", "version": 1}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Results []pushResultDTO `json:"results"`
		} `json:"data"`
	}
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	require.Len(t, body.Data.Results, 2)
	for _, res := range body.Data.Results {
		assert.Equal(t, "success", res.Status)
		assert.NotEmpty(t, res.ServerID)
	}
	assert.NotEqual(t, body.Data.Results[0].ServerID, body.Data.Results[1].ServerID)
}

func TestChangesEndpoint_SinceFilter(t *testing.T) {
	s, ts := testServer(t)
	token := login(t, ts)

	s.store.Apply("a", models.ActionCreate, 1, &models.EntryPayload{ID: "a", Title: "old"})

	cutoff := time.Now().UTC().Add(time.Second).Format(time.RFC3339)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sync/changes?since="+cutoff+"&types=entry&limit=100", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Changes []changeDTO `json:"changes"`
		} `json:"data"`
	}
	decodeBody(t, resp, &body)
	require.True(t, body.Success)
	assert.Empty(t, body.Data.Changes, "nothing changed after the cutoff")
}

func TestChangesEndpoint_TypesFilter(t *testing.T) {
	s, ts := testServer(t)
	token := login(t, ts)

	s.store.Apply("a", models.ActionCreate, 1, &models.EntryPayload{ID: "a", Title: "t"})

	get := func(types string) []changeDTO {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/sync/changes?types="+types, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		var body struct {
			Success bool `json:"success"`
			Data    struct {
				Changes []changeDTO `json:"changes"`
			} `json:"data"`
		}
		decodeBody(t, resp, &body)
		require.True(t, body.Success)
		return body.Data.Changes
	}

	assert.Len(t, get("entry"), 1)
	assert.Len(t, get("note,entry"), 1)
	assert.Empty(t, get("note"), "other entity types have no changes here")
}
