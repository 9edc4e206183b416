// Package profile persists the practitioner's profile as a JSON blob in the
// key-value store.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kittclouds/matlog/internal/kvstore"
)

// Key is the key-value entry holding the profile.
const Key = "@matlog/profile"

// MaxStripes is the highest stripe count below the next belt.
const MaxStripes = 4

// Belt is a jiu-jitsu rank.
type Belt string

const (
	White  Belt = "white"
	Blue   Belt = "blue"
	Purple Belt = "purple"
	Brown  Belt = "brown"
	Black  Belt = "black"
)

// Valid reports whether b is a known belt.
func (b Belt) Valid() bool {
	switch b {
	case White, Blue, Purple, Brown, Black:
		return true
	}
	return false
}

// ErrInvalidProfile is returned for profiles that fail validation.
var ErrInvalidProfile = errors.New("invalid profile")

// Profile is the free-text user profile.
type Profile struct {
	Name    string `json:"name"`
	Belt    Belt   `json:"belt"`
	Stripes int    `json:"stripes"`
}

// Default is the profile shown before the user saves one.
func Default() *Profile {
	return &Profile{Belt: White}
}

// Validate checks belt and stripe bounds.
func (p *Profile) Validate() error {
	if !p.Belt.Valid() {
		return fmt.Errorf("%w: unknown belt %q", ErrInvalidProfile, p.Belt)
	}
	if p.Stripes < 0 || p.Stripes > MaxStripes {
		return fmt.Errorf("%w: stripes must be between 0 and %d", ErrInvalidProfile, MaxStripes)
	}
	return nil
}

// Load returns the stored profile, or the default when none is stored.
// Unknown belts and out-of-range stripes in stored data are normalized.
func Load(ctx context.Context, kv kvstore.Store) (*Profile, error) {
	blob, ok, err := kv.Get(ctx, Key)
	if err != nil {
		return nil, err
	}
	if !ok || blob == "" {
		return Default(), nil
	}

	p := Default()
	if err := json.Unmarshal([]byte(blob), p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.Belt = Belt(strings.ToLower(string(p.Belt)))
	if !p.Belt.Valid() {
		p.Belt = White
	}
	p.Stripes = min(max(p.Stripes, 0), MaxStripes)
	return p, nil
}

// Save validates and stores p.
func Save(ctx context.Context, kv kvstore.Store, p *Profile) error {
	if p == nil {
		return fmt.Errorf("%w: profile is required", ErrInvalidProfile)
	}
	clean := *p
	clean.Name = strings.TrimSpace(clean.Name)
	clean.Belt = Belt(strings.ToLower(string(clean.Belt)))
	if clean.Belt == "" {
		clean.Belt = White
	}
	if err := clean.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(clean)
	if err != nil {
		return err
	}
	return kv.Set(ctx, Key, string(data))
}
