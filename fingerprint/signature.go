package fingerprint

import (
	"github.com/google/uuid"
)

// detectionMask marks the launch signature bits a server-side check reads
// to flag modified clients, big-endian.
var detectionMask = [16]byte{
	0x00, 0x80, 0x10, 0x10, 0x08, 0x10, 0x08, 0x00,
	0x20, 0x81, 0x00, 0x40, 0x01, 0x00, 0x08, 0x00,
}

// DetectionMask returns a copy of the detection bitmask.
func DetectionMask() [16]byte {
	return detectionMask
}

// NewLaunchSignature returns a random UUID with every detection bit cleared.
func NewLaunchSignature() string {
	id := uuid.New()
	for i := range id {
		id[i] &^= detectionMask[i]
	}
	return id.String()
}

// CleanSignature reports whether sig parses as a UUID with no detection bit set.
func CleanSignature(sig string) bool {
	id, err := uuid.Parse(sig)
	if err != nil {
		return false
	}
	for i := range id {
		if id[i]&detectionMask[i] != 0 {
			return false
		}
	}
	return true
}

// SessionIDs are the identifiers that stay fixed for one logical session.
type SessionIDs struct {
	LaunchSignature    string `json:"launch_signature"`
	LaunchID           string `json:"client_launch_id"`
	HeartbeatSessionID string `json:"client_heartbeat_session_id"`
}

// NewSessionIDs generates a fresh set of session identifiers.
func NewSessionIDs() SessionIDs {
	return SessionIDs{
		LaunchSignature:    NewLaunchSignature(),
		LaunchID:           uuid.NewString(),
		HeartbeatSessionID: uuid.NewString(),
	}
}

func (ids SessionIDs) apply(p *Properties) {
	p.LaunchSignature = ptr(ids.LaunchSignature)
	p.ClientLaunchID = ptr(ids.LaunchID)
	p.ClientHeartbeatSessionID = ptr(ids.HeartbeatSessionID)
}
