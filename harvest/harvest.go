// Package harvest recovers session credentials from every installed channel
// of the client.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"

	"github.com/joncooperworks/sessionharness/crypto"
	"github.com/joncooperworks/sessionharness/logging"
	"github.com/joncooperworks/sessionharness/profile"
)

var (
	// ErrNoCredentialsFound is returned when no channel produced a credential.
	ErrNoCredentialsFound = errors.New("no credentials found")
	// ErrNoRecords marks a channel whose storage held nothing decryptable.
	ErrNoRecords = errors.New("no decryptable records")
)

// NoCredentialsError reports why every channel came up empty.
type NoCredentialsError struct {
	// Failures holds the error recorded for each channel that was tried.
	Failures map[profile.Channel]error
	// Last is the most recent failure, nil when no channel was tried.
	Last error
}

func (e *NoCredentialsError) Error() string {
	if e.Last == nil {
		return ErrNoCredentialsFound.Error()
	}
	return fmt.Sprintf("%v: last error: %v", ErrNoCredentialsFound, e.Last)
}

// Unwrap exposes ErrNoCredentialsFound and the last channel failure to errors.Is/As.
func (e *NoCredentialsError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrNoCredentialsFound}
	}
	return []error{ErrNoCredentialsFound, e.Last}
}

// Harvester walks channel profiles and decrypts the records it finds.
type Harvester struct {
	Platform crypto.Platform
	Root     string
	Channels []profile.Channel
	Logger   zerolog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithChannels limits the channels tried.
func WithChannels(chs ...profile.Channel) Option {
	return func(h *Harvester) { h.Channels = chs }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harvester) { h.Logger = l }
}

// New returns a Harvester for profiles under root.
func New(p crypto.Platform, root string, opts ...Option) *Harvester {
	h := &Harvester{
		Platform: p,
		Root:     root,
		Channels: profile.Channels,
		Logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Harvest returns the distinct credentials found across all channels, sorted.
// It fails with a *NoCredentialsError when the set is empty.
func (h *Harvester) Harvest(ctx context.Context) ([]string, error) {
	found := make(map[string]struct{})
	failures := make(map[profile.Channel]error)
	var last error

	for _, ch := range h.Channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := h.harvestChannel(ctx, ch, found)
		if err != nil {
			failures[ch] = err
			last = err
			if errors.Is(err, profile.ErrStorageUnavailable) {
				h.Logger.Debug().Stringer("channel", ch).Msg("Channel not installed")
			} else {
				h.Logger.Warn().Stringer("channel", ch).Err(err).Msg("Channel harvest failed")
			}
			continue
		}
		h.Logger.Info().Stringer("channel", ch).Int("credentials", n).Msg("Channel harvested")
	}

	if len(found) == 0 {
		return nil, &NoCredentialsError{Failures: failures, Last: last}
	}

	creds := make([]string, 0, len(found))
	for c := range found {
		creds = append(creds, c)
	}
	sort.Strings(creds)
	return creds, nil
}

// harvestChannel adds the channel's credentials to found and returns how many
// records it decrypted.
func (h *Harvester) harvestChannel(ctx context.Context, ch profile.Channel, found map[string]struct{}) (int, error) {
	p, err := profile.Locate(h.Root, ch)
	if err != nil {
		return 0, err
	}
	files, err := p.StorageFiles()
	if err != nil {
		return 0, err
	}

	raw, err := h.Platform.PlatformKey(p)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", ch, err)
	}
	key := memguard.NewBufferFromBytes(raw)
	defer key.Destroy()

	decrypted := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return decrypted, err
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			h.Logger.Debug().Str("file", logging.RedactPath(path)).Err(err).Msg("Skipping unreadable storage file")
			continue
		}
		skipped := 0
		for rec := range crypto.ScanReport(buf, func(int, error) { skipped++ }) {
			cred, err := h.Platform.Decrypt(rec, key.Bytes())
			if err != nil {
				skipped++
				continue
			}
			cred = strings.TrimSpace(cred)
			if cred == "" {
				continue
			}
			found[cred] = struct{}{}
			decrypted++
		}
		if skipped > 0 {
			h.Logger.Debug().Str("file", logging.RedactPath(path)).Int("skipped", skipped).Msg("Skipped malformed records")
		}
	}

	if decrypted == 0 {
		return 0, fmt.Errorf("%s: %w", ch, ErrNoRecords)
	}
	return decrypted, nil
}
