package arbiter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"SignalCoord/internal/domain/models"
	domsvc "SignalCoord/internal/domain/service"
)

// ErrMalformedVerdict marks oracle answers that carry no usable decision.
var ErrMalformedVerdict = errors.New("malformed arbitration verdict")

// contentPaths are the places a completion text is looked up, in order.
var contentPaths = []string{
	"choices.0.message.content", // chat completions
	"choices.0.text",            // legacy completions
	"response",                  // ollama generate
	"output_text",
}

// ParseVerdict reads a verdict from an oracle response body. The body may be a
// chat completion envelope or the decision object itself; the decision JSON
// may be wrapped in a code fence or prose.
func ParseVerdict(body []byte) (domsvc.ArbitrationVerdict, error) {
	if !gjson.ValidBytes(body) {
		return verdictFromText(string(body))
	}
	root := gjson.ParseBytes(body)
	if root.Get("action").Exists() {
		return verdictFromJSON(root)
	}
	if msg := root.Get("error.message"); msg.Exists() {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("oracle error: %s", msg.String())
	}
	for _, p := range contentPaths {
		if v := root.Get(p); v.Exists() && v.Type == gjson.String {
			return verdictFromText(v.String())
		}
	}
	return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w: no completion content", ErrMalformedVerdict)
}

func verdictFromText(text string) (domsvc.ArbitrationVerdict, error) {
	obj, ok := extractObject(text)
	if !ok || !gjson.Valid(obj) {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w: no JSON object in %q", ErrMalformedVerdict, truncate(text, 120))
	}
	return verdictFromJSON(gjson.Parse(obj))
}

func verdictFromJSON(v gjson.Result) (domsvc.ArbitrationVerdict, error) {
	action := v.Get("action")
	if action.Type != gjson.String {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w: action missing or not a string", ErrMalformedVerdict)
	}
	st, ok := models.ParseSignalType(action.String())
	if !ok {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w: unknown action %q", ErrMalformedVerdict, action.String())
	}
	conf := v.Get("confidence")
	if conf.Type != gjson.Number {
		return domsvc.ArbitrationVerdict{}, fmt.Errorf("%w: confidence missing or not a number", ErrMalformedVerdict)
	}
	return domsvc.ArbitrationVerdict{
		Action:     st,
		Confidence: models.Clamp01(conf.Float()),
		Reasoning:  strings.TrimSpace(v.Get("reasoning").String()),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
