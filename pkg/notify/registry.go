package notify

import (
	"context"
	"fmt"
	"io"

	"github.com/tasqc/keytrans-client/internal/logger"
)

// Builder creates a Notifier from a config entry.
type Builder func(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error)

// Registry maps notifier types to the builders that construct them.
type Registry map[string]Builder

// DefaultRegistry knows every sink this package ships.
func DefaultRegistry() Registry {
	return Registry{
		TypeHTTP:   newHTTPNotifier,
		TypeSQS:    newSQSNotifier,
		TypeSNS:    newSNSNotifier,
		TypePubSub: newPubSubNotifier,
	}
}

// Build constructs the notifier for cfg. Notifiers restricted to some
// failure kinds are wrapped so the fan-out skips the rest.
func (r Registry) Build(ctx context.Context, cfg NotifierConfig, log logger.Logger) (Notifier, error) {
	build, ok := r[cfg.Type]
	if !ok || build == nil {
		return nil, fmt.Errorf("no notifier registered for type %q", cfg.Type)
	}
	n, err := build(ctx, cfg, logger.Ensure(log))
	if err != nil {
		return nil, err
	}
	if len(cfg.Kinds) == 0 {
		return n, nil
	}
	return &kindRouted{Notifier: n, cfg: cfg}, nil
}

// BuildAll builds every config, closing the ones already built if any fails.
func BuildAll(ctx context.Context, reg Registry, cfgs []NotifierConfig, log logger.Logger) ([]Notifier, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	notifiers := make([]Notifier, 0, len(cfgs))
	for _, cfg := range cfgs {
		n, err := reg.Build(ctx, cfg, log)
		if err != nil {
			_ = closeAll(notifiers)
			return nil, fmt.Errorf("notifier %q: %w", cfg.ID, err)
		}
		notifiers = append(notifiers, n)
	}
	return notifiers, nil
}

// kindRouted limits a notifier to the failure kinds its config lists.
type kindRouted struct {
	Notifier
	cfg NotifierConfig
}

func (k *kindRouted) Accepts(kind string) bool { return k.cfg.Accepts(kind) }

func (k *kindRouted) Close() error {
	if c, ok := k.Notifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
