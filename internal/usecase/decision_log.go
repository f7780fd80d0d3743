package usecase

import (
	"sync"

	"SignalCoord/internal/domain/models"
)

// DefaultDecisionWindow is how many recent decisions are kept for inspection.
const DefaultDecisionWindow = 50

// DecisionLog is a bounded window of the latest decisions, newest last.
type DecisionLog struct {
	mu    sync.RWMutex
	items []models.Decision
	limit int
}

func NewDecisionLog(limit int) *DecisionLog {
	if limit <= 0 {
		limit = DefaultDecisionWindow
	}
	return &DecisionLog{limit: limit, items: make([]models.Decision, 0, limit)}
}

func (l *DecisionLog) Append(d models.Decision) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == l.limit {
		copy(l.items, l.items[1:])
		l.items = l.items[:len(l.items)-1]
	}
	l.items = append(l.items, d)
}

// Recent returns up to n decisions, newest first.
func (l *DecisionLog) Recent(n int) []models.Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]models.Decision, 0, n)
	for i := len(l.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.items[i])
	}
	return out
}
