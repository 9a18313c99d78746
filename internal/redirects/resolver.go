// Package redirects resolves public short codes to their redirect targets.
package redirects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"qrlink/internal/apperr"
	"qrlink/internal/metrics"
	"qrlink/internal/models"
	"qrlink/internal/qrcodes"
)

// Target is where a short code sends the scanner.
type Target struct {
	QRCodeID    string
	ShortCode   string
	RedirectURL string
}

// CacheOptions sizes the in-process short code cache. A zero TTL or
// MaxEntries disables caching.
type CacheOptions struct {
	MaxEntries int
	TTL        time.Duration
}

// Resolver looks up short codes without ownership checks; scanning is
// anonymous.
type Resolver struct {
	conn   models.Connector
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewResolver(conn models.Connector, logger *slog.Logger, opts CacheOptions) (*Resolver, error) {
	r := &Resolver{conn: conn, logger: logger, ttl: opts.TTL}
	if opts.MaxEntries <= 0 || opts.TTL <= 0 {
		logger.Info("Redirect cache disabled")
		return r, nil
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(opts.MaxEntries) * 10,
		MaxCost:     int64(opts.MaxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating redirect cache: %w", err)
	}
	r.cache = cache

	logger.Info("Redirect cache initialized",
		slog.Int("max_entries", opts.MaxEntries),
		slog.Duration("ttl", opts.TTL))
	return r, nil
}

// Resolve returns the target of shortCode, or a NotFound error.
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (Target, error) {
	if strings.TrimSpace(shortCode) == "" {
		return Target{}, apperr.NotFound("short code", shortCode)
	}

	if r.cache != nil {
		if v, ok := r.cache.Get(shortCode); ok {
			if target, ok := v.(Target); ok {
				metrics.RedirectCacheHits.Inc()
				return target, nil
			}
		}
		metrics.RedirectCacheMisses.Inc()
	}

	qr, err := qrcodes.FindByShortCode(ctx, r.conn.GetConnection(), shortCode)
	if err != nil {
		return Target{}, err
	}

	target := Target{QRCodeID: qr.ID, ShortCode: qr.ShortCode, RedirectURL: qr.RedirectURL}
	if r.cache != nil {
		r.cache.SetWithTTL(shortCode, target, 1, r.ttl)
	}
	return target, nil
}

// Invalidate drops shortCode from the cache. It blocks until the removal is
// visible to later Resolve calls.
func (r *Resolver) Invalidate(shortCode string) {
	if r.cache == nil {
		return
	}
	r.cache.Del(shortCode)
	r.cache.Wait()
	r.logger.Debug("Redirect cache entry invalidated", slog.String("short_code", shortCode))
}

// Close stops the cache's background goroutines.
func (r *Resolver) Close() {
	if r.cache != nil {
		r.cache.Close()
	}
}
