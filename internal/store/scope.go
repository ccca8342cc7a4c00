// Package store persists connection state per identity scope.
//
// A scope is the triple (tier, user, label). The tier picks the medium:
// session state lives only in process memory, local state lives in a file
// or sqlite database on this machine, and shared state lives in postgres.
// Keys never contain the raw user identity.
package store

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Tier is the persistence tier of a scope.
type Tier string

const (
	TierSession Tier = "session"
	TierLocal   Tier = "local"
	TierShared  Tier = "shared"
)

// ParseTier validates a tier name.
func ParseTier(name string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(name))); t {
	case TierSession, TierLocal, TierShared:
		return t, nil
	case "":
		return TierLocal, nil
	default:
		return "", fmt.Errorf("unknown tier %q (want session, local or shared)", name)
	}
}

// DefaultLabel is the logical scope label used when none is configured.
const DefaultLabel = "connections"

// Scope identifies one storage bucket.
type Scope struct {
	Tier   Tier
	UserID string // empty for an anonymous session
	Label  string
}

// Anonymous reports whether the scope has no user identity.
func (s Scope) Anonymous() bool {
	return strings.TrimSpace(s.UserID) == ""
}

// Key returns the storage key, e.g. "hrconnect:local:anon:connections".
func (s Scope) Key() string {
	tier := s.Tier
	if tier == "" {
		tier = TierLocal
	}
	label := strings.TrimSpace(s.Label)
	if label == "" {
		label = DefaultLabel
	}
	return "hrconnect:" + string(tier) + ":" + userSegment(s.UserID) + ":" + label
}

func (s Scope) String() string { return s.Key() }

func userSegment(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "anon"
	}
	sum := blake2b.Sum256([]byte(userID))
	return "u" + hex.EncodeToString(sum[:8])
}
