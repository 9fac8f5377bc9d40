// Package refresh keeps a fingerprint.Manager current by trying each header
// source in order of trust: the live client, then the web client's scripts.
package refresh

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/sessionharness/fingerprint"
	"github.com/joncooperworks/sessionharness/introspect"
	"github.com/joncooperworks/sessionharness/remote"
)

// Introspector captures the header from a running client.
type Introspector interface {
	FetchFingerprint(ctx context.Context, port int) (introspect.Fingerprint, error)
}

// Scraper reads build information published by the service.
type Scraper interface {
	FetchBuildNumber(ctx context.Context) (uint64, error)
	FetchClientInfo(ctx context.Context) (remote.ClientInfo, error)
}

// Result describes one refresh attempt.
type Result struct {
	Success bool                   `json:"success"`
	Mode    fingerprint.SourceMode `json:"mode"`
	// BuildNumber is the manager's build number after the attempt, nil when unknown.
	BuildNumber *uint64 `json:"build_number"`
}

// Refresher feeds network results into a Manager. Fetches always complete
// before anything is recorded, so the manager's lock is never held across I/O.
type Refresher struct {
	Manager      *fingerprint.Manager
	Introspector Introspector
	Scraper      Scraper
	Port         int
	Logger       zerolog.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithIntrospector sets the live-client source. A nil introspector skips that tier.
func WithIntrospector(i Introspector) Option {
	return func(r *Refresher) { r.Introspector = i }
}

// WithScraper sets the remote source. A nil scraper skips that tier.
func WithScraper(s Scraper) Option {
	return func(r *Refresher) { r.Scraper = s }
}

// WithPort sets the debug port passed to the introspector.
func WithPort(port int) Option {
	return func(r *Refresher) { r.Port = port }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Refresher) { r.Logger = l }
}

// New returns a Refresher for m using the production sources.
func New(m *fingerprint.Manager, opts ...Option) *Refresher {
	r := &Refresher{
		Manager:      m,
		Introspector: introspect.NewClient(),
		Scraper:      remote.NewClient(),
		Port:         introspect.PortFromEnv(),
		Logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Auto tries introspection, then the remote scripts. The result always
// reports the manager's mode afterwards: a remote build number does not
// demote an introspected manager, and when both sources fail the manager is
// left untouched.
func (r *Refresher) Auto(ctx context.Context) Result {
	if r.Introspector != nil {
		fp, err := r.Introspector.FetchFingerprint(ctx, r.Port)
		if err == nil {
			r.Manager.RecordIntrospected(fp.Encoded, fp.Decoded)
			return r.result(true)
		}
		r.Logger.Warn().Err(err).Int("port", r.Port).Msg("Introspection unavailable, trying remote scripts")
	}

	if r.Scraper != nil && ctx.Err() == nil {
		n, err := r.Scraper.FetchBuildNumber(ctx)
		if err == nil {
			r.Manager.RecordRemoteBuildNumber(n)
			return r.result(true)
		}
		r.Logger.Warn().Err(err).Msg("Remote build number unavailable, keeping current fingerprint")
	}

	return r.result(false)
}

// Retry resets the manager, then runs Auto.
func (r *Refresher) Retry(ctx context.Context) Result {
	r.Manager.Reset()
	return r.Auto(ctx)
}

// SyncClientInfo records the published desktop client version in the manager.
func (r *Refresher) SyncClientInfo(ctx context.Context) error {
	if r.Scraper == nil {
		return nil
	}
	info, err := r.Scraper.FetchClientInfo(ctx)
	if err != nil {
		return err
	}
	r.Manager.RecordClientInfo(info.Version(), info.NativeBuild)
	return nil
}

func (r *Refresher) result(ok bool) Result {
	mode, n, known := r.Manager.ModeAndBuildNumber()
	res := Result{Success: ok, Mode: mode}
	if known {
		res.BuildNumber = &n
	}
	r.Logger.Info().Bool("success", ok).Stringer("mode", mode).Msg("Fingerprint refreshed")
	return res
}
