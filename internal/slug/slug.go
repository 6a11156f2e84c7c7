// Package slug generates the short URL-safe identifiers that form an
// endpoint's public address.
package slug

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultLength gives ~2^47 possible slugs, enough that collisions
	// are noise rather than a design concern.
	DefaultLength = 8

	// maxAttempts bounds regeneration on collision. Running out means
	// either the length is far too short or the store is lying.
	maxAttempts = 5
)

// ErrExhausted is returned when every attempt collided.
var ErrExhausted = errors.New("slug generation exhausted retries")

// ExistsFunc reports whether a candidate slug is already taken.
type ExistsFunc func(ctx context.Context, slug string) (bool, error)

// Generate produces a random URL-safe slug of the given length that the
// exists check does not know. A non-positive length falls back to
// DefaultLength.
func Generate(ctx context.Context, length int, exists ExistsFunc) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		candidate, err := gonanoid.New(length)
		if err != nil {
			return "", fmt.Errorf("generate slug: %w", err)
		}

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", ErrExhausted
}
