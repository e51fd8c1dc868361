package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tasqc/keytrans-client/internal/config"
	"github.com/tasqc/keytrans-client/internal/errlog"
	"github.com/tasqc/keytrans-client/internal/keyservice"
	"github.com/tasqc/keytrans-client/internal/logger"
	"github.com/tasqc/keytrans-client/internal/storage"
	"github.com/tasqc/keytrans-client/pkg/notify"
	"github.com/tasqc/keytrans-client/pkg/transport"
)

// Client represents the key client runtime. It owns the key service and
// routes every failed request to the error log, the failure journal and the
// configured notifiers.
type Client struct {
	cfg           *config.Config
	keys          *keyservice.Service
	store         storage.Store
	fanout        *notify.Fanout
	errors        *errlog.ErrorLogger
	chainInterval time.Duration
	log           logger.Logger
}

// NewClient builds a client runtime from config, talking to the key server
// over resty.
func NewClient(ctx context.Context, cfg *config.Config, log logger.Logger) (*Client, error) {
	return newClient(ctx, cfg, nil, log)
}

func newClient(ctx context.Context, cfg *config.Config, t transport.Transport, log logger.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	storeOpts := storage.Options{
		FailureTTL:      cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"failure_ttl_seconds":      int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	if t == nil {
		t = transport.NewRestyTransport(cfg.TransportTimeout, logger.S)
	}
	keys := keyservice.New(t,
		keyservice.WithEndpoint(cfg.Hostname, cfg.Port),
		keyservice.WithCredentials(cfg.Username, cfg.Password),
		keyservice.WithKeyIDParam(cfg.KeyIDParam),
		keyservice.WithTransportTimeout(cfg.TransportTimeout),
		keyservice.WithLogger(log),
	)
	log.InfoObj("key service ready", "keyserver", map[string]any{
		"endpoint":         keys.Endpoint().String(),
		"key_fetch_prefix": keys.KeyFetchPrefix(),
		"timeout":          cfg.TransportTimeout.String(),
	})

	return &Client{
		cfg:           cfg,
		keys:          keys,
		store:         store,
		fanout:        fanout,
		errors:        errlog.New(cfg.ErrorLogDir),
		chainInterval: cfg.ChainInterval,
		log:           log,
	}, nil
}

func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*notify.Fanout, error) {
	if cfg.NotifiersFile == "" {
		return notify.NewFanout(nil), nil
	}

	reg, err := notify.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}
	enabled := reg.Enabled()
	notifiers, err := notify.BuildAll(ctx, notify.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]any, 0, len(enabled))
	for _, n := range enabled {
		summaries = append(summaries, map[string]any{
			"id":    n.ID,
			"type":  n.Type,
			"kinds": n.Kinds,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})
	return notify.NewFanout(notifiers), nil
}

// Keys exposes the underlying key service.
func (c *Client) Keys() *keyservice.Service { return c.keys }

// Get requests one key, authenticating with lastKey. A non-empty keyID asks
// for that key specifically.
func (c *Client) Get(ctx context.Context, lastKey, keyID string) keyservice.Result {
	var res keyservice.Result
	if keyID == "" {
		res = c.keys.Fetch(lastKey)
	} else {
		res = c.keys.FetchByID(lastKey, keyID)
	}
	if !res.OK() {
		c.recordFailure(ctx, res.Failure)
	}
	return res
}

// Chain requests up to count keys, each one authenticated with the key
// received before it, starting from seed. It stops at the first failure
// and returns the keys received so far along with that failure.
func (c *Client) Chain(ctx context.Context, seed string, count int) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	keys := make([]string, 0, count)
	lastKey := seed
	for i := 0; i < count; i++ {
		if i > 0 && c.chainInterval > 0 {
			timer := time.NewTimer(c.chainInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return keys, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return keys, err
		}

		res := c.Get(ctx, lastKey, "")
		if !res.OK() {
			return keys, res.Err()
		}
		keys = append(keys, res.Key)
		lastKey = res.Key
	}

	c.log.InfoObj("key chain complete", "chain", map[string]any{
		"received": len(keys),
		"key_id":   c.keys.KeyID(),
	})
	return keys, nil
}

// Failures lists the most recent journaled failures, newest first.
func (c *Client) Failures(limit int) ([]storage.Failure, error) {
	return c.store.RecentFailures(limit)
}

func (c *Client) recordFailure(ctx context.Context, f *keyservice.Failure) {
	endpoint := c.keys.Endpoint().String()
	c.errors.LogError(f.Message)

	if err := c.store.RecordFailure(storage.Failure{
		At:       time.Now().UTC(),
		Endpoint: endpoint,
		Kind:     f.Kind.String(),
		Message:  f.Message,
	}); err != nil {
		c.log.ErrorObj("failed to journal key failure", "error", err)
	}

	if c.fanout.Size() == 0 {
		return
	}
	evt := notify.NewEvent(endpoint, f.Kind.String(), f.Message, c.keys.KeyID())
	delivered, err := c.fanout.Notify(ctx, evt)
	if err != nil {
		c.log.WarnObj("some notifiers failed", "notify", map[string]any{
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}

// Close dumps buffered error texts and releases storage, notifiers and the
// key service.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	var errs []error
	if c.errors.Len() > 0 {
		file, err := c.errors.DumpErrors()
		if err != nil {
			errs = append(errs, fmt.Errorf("dump error log: %w", err))
		} else {
			c.log.InfoObj("error log written", "error_log", map[string]any{
				"file":    file,
				"entries": c.errors.Len(),
			})
		}
	}
	if err := c.fanout.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close notifiers: %w", err))
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if err := c.keys.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close key service: %w", err))
	}
	return errors.Join(errs...)
}
