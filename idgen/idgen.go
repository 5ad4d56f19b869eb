// Package idgen provides pluggable ID generation.
//
// Constructors across the codebase accept a Generator, making the ID
// strategy a startup-time decision rather than a compile-time one.
package idgen

import (
	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, globally unique.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
// Useful for type-scoped identifiers (e.g. "obs_", "alr_").
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the repository default: UUIDv7 (RFC 9562).
var Default Generator = UUIDv7()

// New produces an ID using the Default generator.
func New() string {
	return Default()
}
