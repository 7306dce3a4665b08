package plugin

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// Reloader reloads one plugin from disk.
type Reloader interface {
	ReloadFromDisk(ctx context.Context, id domainPlugin.ID) error
}

// ResilienceConfig tunes ResilientReloader.
type ResilienceConfig struct {
	// MaxAttempts is the number of reload attempts per plugin, at least 1.
	MaxAttempts  int
	InitialDelay time.Duration
	// Timeout bounds one reload including retries. Zero disables it.
	Timeout time.Duration
}

// DefaultResilienceConfig retries once with no overall timeout.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		MaxAttempts:  2,
		InitialDelay: 200 * time.Millisecond,
	}
}

// ResilientReloader retries transient reload failures.
type ResilientReloader struct {
	inner Reloader
	cfg   ResilienceConfig
}

func NewResilientReloader(inner Reloader, cfg ResilienceConfig) *ResilientReloader {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &ResilientReloader{inner: inner, cfg: cfg}
}

func (r *ResilientReloader) ReloadFromDisk(ctx context.Context, id domainPlugin.ID) error {
	if r.cfg.Timeout <= 0 {
		return r.reload(ctx, id)
	}

	t := timeout.New[struct{}](timeout.Config{
		DefaultTimeout: r.cfg.Timeout,
	})
	_, err := t.Execute(ctx, r.cfg.Timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.reload(ctx, id)
	})
	return err
}

func (r *ResilientReloader) reload(ctx context.Context, id domainPlugin.ID) error {
	rt := retry.New[struct{}](retry.Config{
		MaxAttempts:   r.cfg.MaxAttempts,
		InitialDelay:  r.cfg.InitialDelay,
		BackoffPolicy: retry.BackoffExponential,
	})

	var last error
	_, err := rt.Do(ctx, func(ctx context.Context) (struct{}, error) {
		last = r.inner.ReloadFromDisk(ctx, id)
		if last != nil && isPermanent(last) {
			// permanent failures end the retry loop
			return struct{}{}, nil
		}
		return struct{}{}, last
	})
	if last != nil {
		return last
	}
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrPluginDisabled) ||
		errors.Is(err, ErrNotExecutable) ||
		errors.Is(err, domainPlugin.ErrPluginNotFound) ||
		errors.Is(err, domainPlugin.ErrManifestNotFound)
}
