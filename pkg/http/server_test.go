package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoRoutes func(e *echo.Echo)

func (f echoRoutes) RegisterRoutes(e *echo.Echo) { f(e) }

type pingRequest struct {
	Name  string  `json:"name" validate:"required"`
	Ratio float64 `json:"ratio" default:"0.5" validate:"gte=0,lte=1"`
	Limit int     `query:"limit" default:"10" validate:"lte=100"`
}

func newTestServer() *Server {
	routes := echoRoutes(func(e *echo.Echo) {
		e.POST("/ping", func(c echo.Context) error {
			req := &pingRequest{}
			if verr := ReadAndValidateRequest(c, req); verr != nil {
				return BadRequestResponse(c, verr)
			}
			return AcceptedResponse(c, req)
		})
		e.GET("/limited", func(c echo.Context) error {
			return AppErrorResponse(c, TooManyRequestsError("slow down").WithParam("agent_id", "a1"))
		})
		e.GET("/panic", func(echo.Context) error { panic("boom") })
	})
	return NewServer([]Handler{routes, nil})
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_BuiltinRoutes(t *testing.T) {
	s := newTestServer()
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/healthz", "").Code)

	rec := serve(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signalcoord_http_requests_total")
}

func TestServer_DefaultsAndValidation(t *testing.T) {
	s := newTestServer()

	rec := serve(s, http.MethodPost, "/ping", `{"name":"x"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ok struct {
		Status int         `json:"status"`
		Data   pingRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.Equal(t, http.StatusAccepted, ok.Status)
	assert.Equal(t, 0.5, ok.Data.Ratio)

	rec = serve(s, http.MethodPost, "/ping", `{"ratio":3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var bad struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bad))
	fields := map[string]string{}
	for _, e := range bad.Data {
		fields[e.Field] = e.Code
	}
	assert.Equal(t, "ERR_REQUIRED", fields["name"])
	assert.Equal(t, "ERR_LTE", fields["ratio"])
}

func TestServer_AppErrorAndRecovery(t *testing.T) {
	s := newTestServer()

	rec := serve(s, http.MethodGet, "/limited", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_RATE_LIMITED")
	assert.Contains(t, rec.Body.String(), `"agent_id":"a1"`)

	rec = serve(s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
