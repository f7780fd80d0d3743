package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "SignalCoord/internal/domain/models"
	mid "SignalCoord/internal/middleware"
	"SignalCoord/internal/usecase"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	e     *echo.Echo
	coord *usecase.Coordinator
}

func newFixture(t *testing.T, opts ...mid.PipelineOption) *fixture {
	t.Helper()
	coord := usecase.NewCoordinator(usecase.DefaultCoordinatorConfig(), usecase.CoordinatorDeps{})
	pipe := mid.NewIntakePipeline(coord, nil, opts...)
	e := echo.New()
	NewCoordinatorEchoHandler(nil, coord, pipe, nil).RegisterRoutes(e)
	return &fixture{e: e, coord: coord}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestAddSignal_Accepted(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/signals",
		`{"agent_id":"a1","signal_type":"BUY","confidence":0.9,"reasoning":"trend","metadata":{"timestamp":1700000000,"desk":"fx"}}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var st models.StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 1, st.Accepted)
	assert.Equal(t, 1, st.Buffered)

	pending := f.coord.Buffer().Snapshot()
	require.Len(t, pending, 1)
	assert.Equal(t, models.SignalBuy, pending[0].SignalType)
	require.NotNil(t, pending[0].Timestamp)
	assert.Equal(t, "fx", pending[0].Extra["desk"])
}

func TestAddSignal_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/signals", `{"signal_type":"short","confidence":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, string(env.Data), "agent_id")
	assert.Contains(t, string(env.Data), "signal_type")
	assert.Equal(t, 0, f.coord.Buffer().Len())
}

func TestAddSignal_Throttled(t *testing.T) {
	f := newFixture(t, mid.WithAgentRate(0.001, 1))
	body := `{"agent_id":"a1","signal_type":"buy","confidence":0.5}`

	rec, _ := f.do(t, http.MethodPost, "/api/signals", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec, env := f.do(t, http.MethodPost, "/api/signals", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, string(env.Data), "ERR_RATE_LIMITED")
	assert.Equal(t, 1, f.coord.Buffer().Len())
}

func TestAddSignals_CountsRejected(t *testing.T) {
	f := newFixture(t, mid.WithAgentRate(0.001, 2))
	rec, env := f.do(t, http.MethodPost, "/api/signals/batch", `{"signals":[
		{"agent_id":"a1","signal_type":"buy","confidence":0.5},
		{"agent_id":"a1","signal_type":"buy","confidence":0.6},
		{"agent_id":"a1","signal_type":"sell","confidence":0.7},
		{"agent_id":"a2","signal_type":"hold","confidence":0.4}
	]}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	var st models.StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 3, st.Accepted)
	assert.Equal(t, 1, st.Rejected)
	assert.Equal(t, 3, st.Buffered)
}

func TestDecide_ConsensusAndEmpty(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/decisions", `{"signals":[
		{"agent_id":"a1","signal_type":"buy","confidence":0.9},
		{"agent_id":"a2","signal_type":"buy","confidence":0.8},
		{"agent_id":"a3","signal_type":"buy","confidence":0.7}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var dec models.Decision
	require.NoError(t, json.Unmarshal(env.Data, &dec))
	assert.Equal(t, models.SignalBuy, dec.Action)
	assert.InDelta(t, 1.0, dec.Confidence, 1e-9)
	assert.Equal(t, models.PathConsensus, dec.Path)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, dec.Agents)

	rec, env = f.do(t, http.MethodPost, "/api/decisions", `{"signals":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dec))
	assert.Equal(t, models.SignalHold, dec.Action)
	assert.Equal(t, "No signals provided", dec.Reasoning)

	m := f.coord.Metrics()
	assert.EqualValues(t, 1, m.ConsensusCount)
	assert.EqualValues(t, 1, m.EmptyCount)
}

func TestRunCycle_DrainsBuffer(t *testing.T) {
	f := newFixture(t)
	f.coord.AddSignal(models.AgentSignal{AgentID: "a1", SignalType: models.SignalBuy, Confidence: 0.9})
	f.coord.AddSignal(models.AgentSignal{AgentID: "a2", SignalType: models.SignalSell, Confidence: 0.9})

	rec, env := f.do(t, http.MethodPost, "/api/cycles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var dec models.Decision
	require.NoError(t, json.Unmarshal(env.Data, &dec))
	assert.Equal(t, models.SignalHold, dec.Action)
	assert.Equal(t, models.PathConflict, dec.Path)
	assert.Equal(t, 0, f.coord.Buffer().Len())

	rec, env = f.do(t, http.MethodGet, "/api/decisions/recent?n=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)
}

func TestRecentDecisions_RejectsOutOfRange(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/api/decisions/recent?n=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordOutcome_UpdatesReliability(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/outcomes", `{"agent_id":"a1","predicted":"buy","realized":"sell"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out models.OutcomeResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.InDelta(t, 0.95, out.Reliability, 1e-9)

	rec, env = f.do(t, http.MethodGet, "/api/reliability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var scores map[string]float64
	require.NoError(t, json.Unmarshal(env.Data, &scores))
	assert.InDelta(t, 0.95, scores["a1"], 1e-9)
}

func TestRecordOutcome_SignalTypeCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	rec, env := f.do(t, http.MethodPost, "/api/outcomes", `{"agent_id":"a1","predicted":"Risk_Up","realized":"risk_up"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out models.OutcomeResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	// a correct call keeps an unseen agent at 1.0
	assert.InDelta(t, 1.0, out.Reliability, 1e-9)

	rec, _ = f.do(t, http.MethodPost, "/api/outcomes", `{"agent_id":"a1","predicted":"LONG","realized":"buy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBuffer_ReportsDepth(t *testing.T) {
	f := newFixture(t)
	f.coord.AddSignal(models.AgentSignal{AgentID: "a1", SignalType: models.SignalHold, Confidence: 0.3})

	rec, env := f.do(t, http.MethodGet, "/api/buffer?signals=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var b models.BufferResponse
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, 1, b.Pending)
	assert.Equal(t, usecase.DefaultBufferCapacity, b.Capacity)
	require.Len(t, b.Signals, 1)
	assert.Equal(t, "a1", b.Signals[0].AgentID)
}

type stubStream struct{ called bool }

func (s *stubStream) ServeWS(w http.ResponseWriter, _ *http.Request) error {
	s.called = true
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func TestStream_DelegatesToServer(t *testing.T) {
	coord := usecase.NewCoordinator(usecase.DefaultCoordinatorConfig(), usecase.CoordinatorDeps{})
	stream := &stubStream{}
	e := echo.New()
	NewCoordinatorEchoHandler(nil, coord, mid.NewIntakePipeline(coord, nil), stream).RegisterRoutes(e)

	req := httptest.NewRequest(http.MethodGet, "/ws/decisions", nil).WithContext(context.Background())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.True(t, stream.called)
}
