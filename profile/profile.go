// Package profile locates the on-disk profiles of the desktop chat client.
//
// Each release channel keeps its own Chromium-style profile directory holding a
// "Local State" file (the wrapped master key on Windows) and a
// "Local Storage/leveldb" directory of append-only log files that carry the
// encrypted session records.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// ErrStorageUnavailable is returned when no local profile exists for a channel.
var ErrStorageUnavailable = errors.New("profile storage unavailable")

// RootEnv overrides the per-OS profile root when set.
const RootEnv = "SESSIONHARNESS_PROFILE_ROOT"

// Channel identifies one release channel of the client.
type Channel int

const (
	Stable Channel = iota
	Canary
	PTB
)

// Channels is every known release channel in probe order.
var Channels = []Channel{Stable, Canary, PTB}

func (c Channel) String() string {
	switch c {
	case Stable:
		return "Stable"
	case Canary:
		return "Canary"
	case PTB:
		return "PTB"
	default:
		return fmt.Sprintf("Channel(%d)", int(c))
	}
}

// DirName is the profile directory name under the profile root.
func (c Channel) DirName() string {
	switch c {
	case Canary:
		return "discordcanary"
	case PTB:
		return "discordptb"
	default:
		return "discord"
	}
}

// SafeStorageService is the keychain service holding the channel's storage password.
// The client registers it in lowercase.
func (c Channel) SafeStorageService() string {
	return c.DirName() + " Safe Storage"
}

// KeychainAccount is the keychain account paired with SafeStorageService.
func (c Channel) KeychainAccount() string {
	return c.DirName() + " Key"
}

// Storage file extensions scanned for encrypted records.
var storageExtensions = map[string]bool{
	".ldb": true,
	".log": true,
}

// Profile is one located channel profile.
type Profile struct {
	Channel Channel
	Dir     string
}

// LocalStatePath returns the path of the JSON state file.
func (p Profile) LocalStatePath() string {
	return filepath.Join(p.Dir, "Local State")
}

// StorageDir returns the leveldb directory holding the log-structured storage.
func (p Profile) StorageDir() string {
	return filepath.Join(p.Dir, "Local Storage", "leveldb")
}

// StorageFiles lists the storage files with a recognized extension, sorted by name.
func (p Profile) StorageFiles() ([]string, error) {
	entries, err := os.ReadDir(p.StorageDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p.Channel, ErrStorageUnavailable)
		}
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if storageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(p.StorageDir(), entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// DefaultRoot returns the directory holding every channel's profile for the current OS.
func DefaultRoot() (string, error) {
	if root := os.Getenv(RootEnv); root != "" {
		return root, nil
	}
	return rootFor(runtime.GOOS)
}

func rootFor(goos string) (string, error) {
	switch goos {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA is not set: %w", ErrStorageUnavailable)
		}
		return appData, nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		return "", fmt.Errorf("unsupported platform %s: %w", goos, ErrStorageUnavailable)
	}
}

// Locate returns the profile for ch under root.
func Locate(root string, ch Channel) (Profile, error) {
	dir := filepath.Join(root, ch.DirName())
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Profile{}, fmt.Errorf("%s not installed: %w", ch, ErrStorageUnavailable)
	}
	return Profile{Channel: ch, Dir: dir}, nil
}

// Installed returns the channels that have a profile directory under root.
func Installed(root string) []Profile {
	var profiles []Profile
	for _, ch := range Channels {
		if p, err := Locate(root, ch); err == nil {
			profiles = append(profiles, p)
		}
	}
	return profiles
}
