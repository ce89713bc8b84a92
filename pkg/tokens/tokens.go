// Package tokens issues and checks the opaque credentials that gate the
// participant-facing flows: invitation tokens, session tokens, and researcher
// session tokens. Tokens are pure random strings; everything they mean lives
// in the store record they resolve to.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Kind selects the prefix a token is issued under.
type Kind string

const (
	KindInvitation Kind = "inv"
	KindSession    Kind = "sess"
	KindResearcher Kind = "rs"
)

const randomBytes = 32 // 256 bits, comfortably past the collision floor

// Issue generates a fresh opaque token. Tokens are never reused or recycled;
// a new invitation always gets a new token. A token is a credential, so there
// is no degraded path: if the system's entropy source is broken, Issue panics
// rather than hand out something guessable.
func Issue(kind Kind) string {
	b := make([]byte, randomBytes)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("tokens: crypto/rand unavailable: %v", err))
	}
	return string(kind) + "_" + base64.RawURLEncoding.EncodeToString(b)
}

// KindOf reports the kind a token was issued under, or false for tokens
// that carry no recognizable prefix.
func KindOf(token string) (Kind, bool) {
	idx := strings.IndexByte(token, '_')
	if idx <= 0 {
		return "", false
	}
	switch k := Kind(token[:idx]); k {
	case KindInvitation, KindSession, KindResearcher:
		return k, true
	default:
		return "", false
	}
}

// Record is the slice of a stored row the validity rule needs.
type Record struct {
	Token string

	// ExpiresAt is zero for tokens that do not expire (session tokens).
	ExpiresAt time.Time

	// ParentGone is true when the entity the token is bound to has been
	// deleted or soft-deleted. Such tokens are invalid but retained for audit.
	ParentGone bool
}

// Valid reports whether a resolved record is still usable at now. Expiry is
// monotonic: once a token is invalid it never revives.
func Valid(rec Record, now time.Time) bool {
	if strings.TrimSpace(rec.Token) == "" {
		return false
	}
	if rec.ParentGone {
		return false
	}
	if !rec.ExpiresAt.IsZero() && !now.Before(rec.ExpiresAt) {
		return false
	}
	return true
}
