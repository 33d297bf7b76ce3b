// Courier - Real-time Messaging and Notification Fan-out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/courier

// Package room defines the typed addressing scheme for broadcast rooms.
//
// A room is an addressable set of currently connected sessions. Three kinds
// exist:
//
//   - personal:{userID}    auto-joined, one per user, always addressable
//   - group:{groupID}      joined only after membership validation
//   - private:{min}-{max}  deterministic key for a two-party conversation
//
// Every room key in the system is produced by the constructors in this
// package. Join and send paths therefore cannot drift apart on key format.
package room

import (
	"strconv"
)

// Kind identifies the room category.
type Kind string

const (
	KindPersonal Kind = "personal"
	KindGroup    Kind = "group"
	KindPrivate  Kind = "private"
)

// Key addresses a single broadcast room. Keys are comparable values and are
// used directly as map keys by the hub.
type Key struct {
	kind Kind
	// a holds the user ID (personal), group ID (group), or the lower
	// participant ID (private). b is set only for private rooms.
	a string
	b string
}

// Personal returns the always-addressable per-user inbox room.
func Personal(userID string) Key {
	return Key{kind: KindPersonal, a: userID}
}

// Group returns the room for a group conversation.
func Group(groupID string) Key {
	return Key{kind: KindGroup, a: groupID}
}

// Private returns the deterministic room for a two-party conversation.
// The participant IDs are ordered ascending (numerically when both IDs are
// numeric, lexicographically otherwise) so that both participants resolve
// to the identical key regardless of who initiates.
func Private(userA, userB string) Key {
	lo, hi := userA, userB
	if !idLess(lo, hi) {
		lo, hi = hi, lo
	}
	return Key{kind: KindPrivate, a: lo, b: hi}
}

// idLess orders two user IDs ascending. Numeric IDs compare numerically so
// that "9" sorts before "10"; mixed or non-numeric IDs fall back to plain
// string comparison.
func idLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

// Kind returns the room category.
func (k Key) Kind() Kind {
	return k.kind
}

// String renders the wire form of the key.
func (k Key) String() string {
	switch k.kind {
	case KindPrivate:
		return string(k.kind) + ":" + k.a + "-" + k.b
	default:
		return string(k.kind) + ":" + k.a
	}
}

// IsZero reports whether the key was never initialized via a constructor.
func (k Key) IsZero() bool {
	return k.kind == ""
}

// Owner returns the user ID for personal rooms, and "" for other kinds.
func (k Key) Owner() string {
	if k.kind == KindPersonal {
		return k.a
	}
	return ""
}
