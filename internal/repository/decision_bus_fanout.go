package repository

import (
	"context"
	"errors"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
)

// FanoutBus publishes every decision to all of its buses. A failing bus does
// not stop delivery to the others; the errors are joined.
type FanoutBus struct {
	buses []domrepo.DecisionBus
}

// NewFanoutBus drops nil buses.
func NewFanoutBus(buses ...domrepo.DecisionBus) *FanoutBus {
	out := make([]domrepo.DecisionBus, 0, len(buses))
	for _, b := range buses {
		if b != nil {
			out = append(out, b)
		}
	}
	return &FanoutBus{buses: out}
}

// Len reports how many buses are attached.
func (f *FanoutBus) Len() int { return len(f.buses) }

func (f *FanoutBus) Publish(ctx context.Context, topic string, payload models.DecisionPayload) error {
	var errs []error
	for _, b := range f.buses {
		if err := b.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *FanoutBus) Close() error {
	var errs []error
	for _, b := range f.buses {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domrepo.DecisionBus = (*FanoutBus)(nil)
