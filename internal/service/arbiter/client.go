package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	domsvc "SignalCoord/internal/domain/service"
	svcmetrics "SignalCoord/internal/service/metrics"
	xhttp "SignalCoord/pkg/http"
	applogger "SignalCoord/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("arbiter circuit open")

const systemPrompt = "You are a risk-aware trading arbiter. Resolve conflicts between trading agents. Answer with a single JSON object and nothing else."

// Config holds oracle client settings.
type Config struct {
	URL             string
	APIKey          string
	Model           string
	Temperature     float64
	HTTPTimeout     time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// HTTPArbiter calls an OpenAI-compatible chat completion endpoint.
type HTTPArbiter struct {
	cfg     Config
	client  *xhttp.Client
	breaker *Breaker
	log     *applogger.Logger
}

// New builds the client; opts are passed to the underlying HTTP client.
func New(cfg Config, log *applogger.Logger, opts ...xhttp.ClientOption) (*HTTPArbiter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("arbiter url is required")
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 2 * time.Second
	}
	if log == nil {
		log = applogger.NewNop()
	}
	svcmetrics.Register()

	b := NewBreaker(cfg.BreakerFailures, cfg.BreakerCooldown)
	b.OnStateChange(func(from, to BreakerState) {
		svcmetrics.ArbiterBreakerState.Set(float64(to))
		log.Warn("arbiter breaker state change",
			applogger.String("from", from.String()),
			applogger.String("to", to.String()),
		)
	})

	opts = append([]xhttp.ClientOption{xhttp.WithTimeout(cfg.HTTPTimeout)}, opts...)
	return &HTTPArbiter{
		cfg:     cfg,
		client:  xhttp.NewClient(opts...),
		breaker: b,
		log:     log,
	}, nil
}

// Breaker exposes the circuit breaker state for inspection.
func (a *HTTPArbiter) Breaker() *Breaker { return a.breaker }

// Arbitrate posts the prompt and parses the verdict. Transport errors, non-2xx
// statuses and malformed answers all count as breaker failures.
func (a *HTTPArbiter) Arbitrate(ctx context.Context, req domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error) {
	if !a.breaker.Allow() {
		svcmetrics.ArbiterRejected.Inc()
		return domsvc.ArbitrationVerdict{}, ErrCircuitOpen
	}

	start := time.Now()
	verdict, err := a.call(ctx, req)
	result := "ok"
	switch {
	case err == nil:
		a.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled):
		// caller gave up; says nothing about oracle health
		result = "canceled"
		a.breaker.Release()
	default:
		result = "error"
		a.breaker.RecordFailure()
	}
	svcmetrics.ArbiterLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return verdict, err
}

func (a *HTTPArbiter) call(ctx context.Context, req domsvc.ArbitrationRequest) (domsvc.ArbitrationVerdict, error) {
	body := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: a.cfg.Temperature,
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if a.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.cfg.APIKey
	}

	var raw []byte
	err := a.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     a.cfg.URL,
		Headers: headers,
		Body:    body,
	}, &raw)
	if err != nil {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("post arbiter: %w", err)
	}

	v, err := ParseVerdict(raw)
	if err != nil {
		a.log.Debug("arbiter answer rejected", applogger.Error(err))
		return domsvc.ArbitrationVerdict{}, err
	}
	return v, nil
}

var _ domsvc.Arbiter = (*HTTPArbiter)(nil)
