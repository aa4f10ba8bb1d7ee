package session

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// PrivacyFilter masks identifying fields of snapshots and events before they
// leave the process. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskHost     bool
	MaskUsername bool
	HideErrors   bool
}

// Apply returns a copy of s with sensitive fields masked.
func (f *PrivacyFilter) Apply(s Snapshot) Snapshot {
	if f.MaskHost && s.Host != "" {
		masked := shortHash(s.Host)
		s.LastError = strings.ReplaceAll(s.LastError, s.Host, masked)
		s.Host = masked
	}
	if f.MaskUsername && s.Username != "" {
		s.Username = shortHash(s.Username)
	}
	if f.HideErrors && s.LastError != "" {
		s.LastError = "redacted"
	}
	return s
}

// ApplyEvent masks the free-text fields of ev that may carry the server
// address. hostHint is the unmasked host the event relates to.
func (f *PrivacyFilter) ApplyEvent(ev Event, hostHint string) Event {
	if ev.Reason == "" {
		return ev
	}
	if f.HideErrors {
		ev.Reason = "redacted"
		return ev
	}
	if f.MaskHost && hostHint != "" {
		ev.Reason = strings.ReplaceAll(ev.Reason, hostHint, shortHash(hostHint))
	}
	return ev
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskHost && !f.MaskUsername && !f.HideErrors
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
