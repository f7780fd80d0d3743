package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	models "SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	mid "SignalCoord/internal/middleware"
	"SignalCoord/internal/usecase"
	xhttp "SignalCoord/pkg/http"
	xlogger "SignalCoord/pkg/logger"
)

// StreamServer upgrades a request into a decision stream.
type StreamServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// CoordinatorEchoHandler exposes the coordinator over HTTP.
type CoordinatorEchoHandler struct {
	logger *xlogger.Logger
	coord  *usecase.Coordinator
	sink   domrepo.SignalSink
	stream StreamServer
	now    func() time.Time
}

// NewCoordinatorEchoHandler creates the handler. stream may be nil, in which
// case /ws/decisions is not registered.
func NewCoordinatorEchoHandler(logger *xlogger.Logger, coord *usecase.Coordinator, sink domrepo.SignalSink, stream StreamServer) *CoordinatorEchoHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &CoordinatorEchoHandler{logger: logger, coord: coord, sink: sink, stream: stream, now: time.Now}
}

func (h *CoordinatorEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/signals", h.AddSignal)
	g.POST("/signals/batch", h.AddSignals)
	g.POST("/decisions", h.Decide)
	g.GET("/decisions/recent", h.RecentDecisions)
	g.POST("/cycles", h.RunCycle)
	g.POST("/outcomes", h.RecordOutcome)
	g.GET("/reliability", h.Reliability)
	g.GET("/metrics/coordinator", h.Metrics)
	g.GET("/buffer", h.Buffer)
	if h.stream != nil {
		e.GET("/ws/decisions", h.Stream)
	}
}

func (h *CoordinatorEchoHandler) AddSignal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, err := req.ToSignal()
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	if err := h.sink.Submit(c.Request().Context(), s); err != nil {
		return xhttp.AppErrorResponse(c, h.intakeError(err, s.AgentID))
	}
	return xhttp.AcceptedResponse(c, models.StatusResponse{
		Accepted:   1,
		Buffered:   h.coord.Buffer().Len(),
		ReceivedAt: h.now().UTC(),
	})
}

// AddSignals buffers every valid, non-throttled signal of the batch. Signals
// that fail are counted in Rejected; the batch is never rolled back.
func (h *CoordinatorEchoHandler) AddSignals(c echo.Context) error {
	req := &models.SignalBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	resp := models.StatusResponse{ReceivedAt: h.now().UTC()}
	for _, r := range req.Signals {
		s, err := r.ToSignal()
		if err == nil {
			err = h.sink.Submit(ctx, s)
		}
		if err != nil {
			resp.Rejected++
			h.logger.Debug("batch signal rejected", xlogger.String("agent_id", r.AgentID), xlogger.Error(err))
			continue
		}
		resp.Accepted++
	}
	resp.Buffered = h.coord.Buffer().Len()
	return xhttp.AcceptedResponse(c, resp)
}

// Decide runs one cycle over the posted batch without touching the buffer.
func (h *CoordinatorEchoHandler) Decide(c echo.Context) error {
	req := &models.DecisionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	signals := make([]models.AgentSignal, 0, len(req.Signals))
	for i, r := range req.Signals {
		s, err := r.ToSignal()
		if err != nil {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("signals[%d]: %v", i, err))
		}
		signals = append(signals, s)
	}
	dec := h.coord.ProcessSignals(c.Request().Context(), signals)
	return xhttp.SuccessResponse(c, dec)
}

func (h *CoordinatorEchoHandler) RunCycle(c echo.Context) error {
	dec := h.coord.ProcessPending(c.Request().Context())
	return xhttp.SuccessResponse(c, dec)
}

func (h *CoordinatorEchoHandler) RecentDecisions(c echo.Context) error {
	req := &models.RecentDecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.coord.RecentDecisions(req.N)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *CoordinatorEchoHandler) RecordOutcome(c echo.Context) error {
	req := &models.OutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	o := req.ToOutcome()
	score := h.coord.RecordOutcome(c.Request().Context(), o)
	return xhttp.SuccessResponse(c, models.OutcomeResponse{AgentID: o.AgentID, Reliability: score})
}

func (h *CoordinatorEchoHandler) Reliability(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.coord.Tracker().Snapshot())
}

func (h *CoordinatorEchoHandler) Metrics(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.coord.Metrics())
}

func (h *CoordinatorEchoHandler) Buffer(c echo.Context) error {
	b := h.coord.Buffer()
	resp := models.BufferResponse{Pending: b.Len(), Capacity: b.Cap()}
	if full, _ := strconv.ParseBool(c.QueryParam("signals")); full {
		resp.Signals = b.Snapshot()
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *CoordinatorEchoHandler) Stream(c echo.Context) error {
	if err := h.stream.ServeWS(c.Response(), c.Request()); err != nil {
		h.logger.Warn("decision stream upgrade failed", xlogger.Error(err))
		return nil
	}
	return nil
}

func (h *CoordinatorEchoHandler) intakeError(err error, agentID string) *xhttp.AppError {
	if errors.Is(err, mid.ErrThrottled) {
		return xhttp.TooManyRequestsError("agent signal rate exceeded").
			WithParam("agent_id", agentID).
			WithError(err)
	}
	return xhttp.BadRequestError(err.Error()).WithError(err)
}
