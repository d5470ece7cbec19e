package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/api/websocket"
	"github.com/KevinKickass/OpenUnitSync/internal/auth"
	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

type fakeLifecycle struct {
	units    []types.NetworkUnit
	profiles map[uuid.UUID]*types.StoredUnitProfile
	saved    []*types.StoredUnitProfile
	saveErr  error
	syncReq  *interfaces.SyncRequest
	syncErr  error
	runID    uuid.UUID
	reports  map[uuid.UUID]*types.SyncReport
}

func (f *fakeLifecycle) Scan(context.Context) interfaces.ScanResult { return f.LastScan() }

func (f *fakeLifecycle) LastScan() interfaces.ScanResult {
	return interfaces.ScanResult{Units: f.units, ScannedAt: time.Now()}
}

func (f *fakeLifecycle) GetProfile(_ context.Context, id uuid.UUID) (*types.StoredUnitProfile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeLifecycle) SaveProfile(_ context.Context, p *types.StoredUnitProfile) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, p)
	return nil
}

func (f *fakeLifecycle) StartSync(_ context.Context, req interfaces.SyncRequest) (uuid.UUID, error) {
	f.syncReq = &req
	return f.runID, f.syncErr
}

func (f *fakeLifecycle) RunStatus(runID uuid.UUID) (interfaces.RunStatus, bool) {
	if runID != f.runID {
		return interfaces.RunStatus{}, false
	}
	return interfaces.RunStatus{RunID: runID, State: types.RunExecuting}, true
}

func (f *fakeLifecycle) RunReport(_ context.Context, runID uuid.UUID) (*types.SyncReport, error) {
	if r, ok := f.reports[runID]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", UnitCount: len(f.units)}
}

type testServer struct {
	handler http.Handler
	lm      *fakeLifecycle
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := auth.NewPasswordHasher().HashPassword("pw")
	require.NoError(t, err)

	cfg := &config.Config{Auth: config.AuthConfig{
		JWTSecretEnv:      "OUS_REST_TEST_SECRET",
		AccessTokenTTL:    time.Minute,
		AdminUser:         "admin",
		AdminPasswordHash: hash,
	}}
	authService := auth.NewAuthService(nil, cfg.Auth, zap.NewNop())
	hub := websocket.NewHub(zap.NewNop(), authService)

	lm := &fakeLifecycle{
		units: []types.NetworkUnit{
			{IPAddress: "10.0.0.5", CanID: "1.2.3.4"},
		},
		profiles: map[uuid.UUID]*types.StoredUnitProfile{},
		runID:    uuid.New(),
		reports:  map[uuid.UUID]*types.SyncReport{},
	}
	srv := NewServer(cfg, lm, zap.NewNop(), hub, authService)

	ts := &testServer{handler: srv.Handler(), lm: lm}

	w := ts.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "admin", Password: "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	ts.token = login.AccessToken

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestHealthAndAuth(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	anon := &testServer{handler: ts.handler}
	w = anon.do(t, http.MethodGet, "/api/v1/units", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = anon.do(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Username: "admin", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestScanAndList(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/units/scan", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestProfiles(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()

	w := ts.do(t, http.MethodGet, "/api/v1/profiles/"+id.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/profiles/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPut, "/api/v1/profiles/"+id.String(), types.StoredUnitProfile{
		Name: "Kitchen", IPAddress: "10.0.0.5", CanID: "1.2.3.4",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, ts.lm.saved, 1)
	assert.Equal(t, id, ts.lm.saved[0].ID)

	w = ts.do(t, http.MethodPut, "/api/v1/profiles/"+id.String(), types.StoredUnitProfile{ID: uuid.New(), Name: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	ts.lm.saveErr = fmt.Errorf("save profile %s: %w", id, interfaces.ErrNoDatabase)
	w = ts.do(t, http.MethodPut, "/api/v1/profiles/"+id.String(), types.StoredUnitProfile{Name: "Kitchen"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ts.lm.saveErr = types.NewValidationError("PROFILE_IO_INDEX", "bad indexes")
	w = ts.do(t, http.MethodPut, "/api/v1/profiles/"+id.String(), types.StoredUnitProfile{Name: "Kitchen"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartSync(t *testing.T) {
	ts := newTestServer(t)
	profileID := uuid.New()

	w := ts.do(t, http.MethodPost, "/api/v1/sync", map[string]any{
		"targets":    []map[string]any{{"unit": "10.0.0.5/1.2.3.4", "profile_id": profileID}},
		"categories": []string{"scenes", "knx"},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotNil(t, ts.lm.syncReq)
	assert.Equal(t, []types.ConfigCategory{types.CategoryScenes, types.CategoryKNX}, ts.lm.syncReq.Categories)
	assert.Equal(t, profileID, ts.lm.syncReq.Targets[0].ProfileID)

	ts.lm.syncErr = types.NewValidationError("PROFILE_SINGLE_TARGET", "a profile can only be written to exactly one unit", "a", "b")
	w = ts.do(t, http.MethodPost, "/api/v1/sync", map[string]any{
		"targets":       []map[string]any{{"unit": "a", "profile_id": profileID}, {"unit": "b", "profile_id": profileID}},
		"write_profile": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var errBody types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errBody))
	assert.Equal(t, "PROFILE_SINGLE_TARGET", errBody.Error.Code)
}

func TestSyncStatusAndReport(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/sync/"+ts.lm.runID.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/sync/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/api/v1/sync/"+ts.lm.runID.String()+"/report", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts.lm.reports[ts.lm.runID] = types.NewSyncReport(ts.lm.runID, time.Now(), time.Now(), []types.OperationResult{
		{UnitLabel: "u", Category: "scenes", Operation: types.OpSend, Success: true, ItemCount: 3},
	})
	w = ts.do(t, http.MethodGet, "/api/v1/sync/"+ts.lm.runID.String()+"/report", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view types.ReportView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, 1, view.Summary.Succeeded)
}
