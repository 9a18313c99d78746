package geoip

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/sync/singleflight"
)

// DefaultDatabaseFileName is used when neither the resolver nor the caller
// names a database file.
const DefaultDatabaseFileName = "GeoLite2-Country.mmdb"

// ErrDatabaseNotFound means the configured GeoLite2 file does not exist.
var ErrDatabaseNotFound = errors.New("geoip: database not found")

// ErrClosed is returned for lookups made after Close.
var ErrClosed = errors.New("geoip: resolver closed")

// CountryReader is the subset of *geoip2.Reader used for lookups.
type CountryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Opener opens the database file at an absolute path.
type Opener func(path string) (CountryReader, error)

func openGeoLite(path string) (CountryReader, error) {
	return geoip2.Open(path)
}

var countryNames = sync.OnceValue(gountries.New)

type handle struct {
	reader CountryReader
	err    error
}

// Resolver maps IP addresses to country names. Each distinct database path is
// opened at most once; the resulting reader, or the error from opening it, is
// kept for the life of the Resolver and shared by all callers.
type Resolver struct {
	defaultPath string
	opener      Opener
	logger      *slog.Logger

	mu      sync.RWMutex
	handles map[string]*handle
	group   singleflight.Group

	// lifecycle is held shared by every lookup and exclusively by Close, so
	// readers are never released under an in-flight lookup.
	lifecycle sync.RWMutex
	closed    bool
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithOpener replaces the GeoLite2 file opener.
func WithOpener(opener Opener) Option {
	return func(r *Resolver) {
		r.opener = opener
	}
}

// NewResolver creates a resolver whose default database is defaultPath.
// Relative paths are resolved against the working directory.
func NewResolver(defaultPath string, logger *slog.Logger, opts ...Option) *Resolver {
	if strings.TrimSpace(defaultPath) == "" {
		defaultPath = DefaultDatabaseFileName
	}
	r := &Resolver{
		defaultPath: defaultPath,
		opener:      openGeoLite,
		logger:      logger,
		handles:     make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CountryName returns the English country name for ip. ok is false for
// loopback and unparseable addresses, for addresses missing from the
// database, and for failed lookups. An error is returned only when the
// database itself cannot be opened; dbPath overrides the default path.
func (r *Resolver) CountryName(ip string, dbPath string) (name string, ok bool, err error) {
	addr, parseErr := netip.ParseAddr(strings.TrimSpace(ip))
	if parseErr != nil {
		return "", false, nil
	}
	addr = addr.Unmap().WithZone("")
	if addr.IsLoopback() {
		return "", false, nil
	}

	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()
	if r.closed {
		return "", false, ErrClosed
	}

	reader, err := r.reader(dbPath)
	if err != nil {
		return "", false, err
	}

	record, lookupErr := reader.Country(net.IP(addr.AsSlice()))
	if lookupErr != nil || record == nil {
		if lookupErr != nil && r.logger != nil {
			r.logger.Debug("GeoIP lookup failed", slog.String("ip", addr.String()), slog.Any("error", lookupErr))
		}
		return "", false, nil
	}

	if name := record.Country.Names["en"]; name != "" {
		return name, true, nil
	}
	if iso := record.Country.IsoCode; iso != "" {
		if country, err := countryNames().FindCountryByAlpha(iso); err == nil && country.Name.Common != "" {
			return country.Name.Common, true, nil
		}
	}
	return "", false, nil
}

// Close waits for in-flight lookups and releases every opened reader. Later
// lookups fail with ErrClosed.
func (r *Resolver) Close() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.closed = true

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for path, h := range r.handles {
		if h.reader != nil {
			if err := h.reader.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", path, err))
			}
		}
		delete(r.handles, path)
	}
	return errors.Join(errs...)
}

func (r *Resolver) resolvePath(dbPath string) string {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = r.defaultPath
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func (r *Resolver) reader(dbPath string) (CountryReader, error) {
	path := r.resolvePath(dbPath)

	r.mu.RLock()
	h, ok := r.handles[path]
	r.mu.RUnlock()
	if ok {
		return h.reader, h.err
	}

	v, _, _ := r.group.Do(path, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.handles[path]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		opened := r.open(path)
		r.mu.Lock()
		r.handles[path] = opened
		r.mu.Unlock()
		return opened, nil
	})

	h = v.(*handle)
	return h.reader, h.err
}

func (r *Resolver) open(path string) *handle {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w at path %q", ErrDatabaseNotFound, path)
		} else {
			err = fmt.Errorf("geoip: checking database %q: %w", path, err)
		}
		if r.logger != nil {
			r.logger.Error("GeoLite2 database unavailable",
				slog.String("path", path),
				slog.Any("error", err),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		}
		return &handle{err: err}
	}

	reader, err := r.opener(path)
	if err != nil {
		err = fmt.Errorf("geoip: opening database %q: %w", path, err)
		if r.logger != nil {
			r.logger.Error("Failed to open GeoLite2 database", slog.String("path", path), slog.Any("error", err))
		}
		return &handle{err: err}
	}

	if r.logger != nil {
		r.logger.Info("GeoLite2 database initialized", slog.String("path", path))
	}
	return &handle{reader: reader}
}
