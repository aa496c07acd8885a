package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/schollz/orchestron/internal/engine"
	"github.com/schollz/orchestron/internal/persistence"
	"github.com/schollz/orchestron/internal/session"
	"github.com/schollz/orchestron/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *persistence.Gateway) {
	t.Helper()
	gw, err := persistence.NewGateway(t.TempDir())
	require.NoError(t, err)
	registry := NewBridgeRegistry()
	mgr := session.NewManager(gw, func() engine.Adapter { return engine.NewMock() }, NewBridgeFactory(registry))
	srv := NewServer(mgr, gw, registry, Config{EngineBackend: "mock"})
	return srv, gw
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	return rec
}

func testEngineConfig() types.EngineConfig {
	return types.EngineConfig{SampleRate: 44100, ControlRate: 4410, Channels: 2, SoftBuffer: 64, HardBuffer: 256, ZeroDBFS: 1}
}

func simplePatch(id string) types.Patch {
	return types.Patch{
		ID:     id,
		Engine: testEngineConfig(),
		Nodes: []types.Node{
			{ID: "n1", OpcodeName: "const_k", Params: map[string]types.ParamValue{"value": types.NumberParam(1)}},
		},
	}
}

func TestHealthReportsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpcodesListsRegistry(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/opcodes", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var defs []opcodeDefinition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defs))
	assert.NotEmpty(t, defs)
}

func TestPatchCRUDRoundTrips(t *testing.T) {
	srv, _ := newTestServer(t)
	patch := simplePatch("p1")

	rec := doRequest(srv, http.MethodPost, "/api/patches", patch)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/patches/p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got types.Patch
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "p1", got.ID)

	rec = doRequest(srv, http.MethodDelete, "/api/patches/p1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/patches/p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv, gw := newTestServer(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	rec := doRequest(srv, http.MethodPost, "/api/sessions", createSessionRequest{
		Assignments: []types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doRequest(srv, http.MethodPost, "/api/sessions/"+created.ID+"/compile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/sessions/"+created.ID+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/api/sessions/"+created.ID+"/sequencer/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/sessions/"+created.ID+"/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSessionRejectsDuplicateChannels(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/api/sessions", createSessionRequest{
		Assignments: []types.InstrumentAssignment{
			{PatchID: "a", MIDIChannel: 0},
			{PatchID: "b", MIDIChannel: 0},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStartUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/api/sessions/does-not-exist/start", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebRTCNegotiateWithoutBridgeReturns422(t *testing.T) {
	srv, gw := newTestServer(t)
	require.NoError(t, gw.SavePatch("p1", simplePatch("p1")))

	rec := doRequest(srv, http.MethodPost, "/api/sessions", createSessionRequest{
		Assignments: []types.InstrumentAssignment{{PatchID: "p1", MIDIChannel: 0}},
	})
	var created struct{ ID string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doRequest(srv, http.MethodPost, "/api/sessions/"+created.ID+"/audio/webrtc", webrtcNegotiateRequest{Type: "offer", SDP: "v=0"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
