package models

import (
	"time"
)

// Identity is an authenticated listener account. The login flow that creates
// identities (and stores their encrypted provider credential) lives outside
// this service; the attribution core only enumerates and polls them.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`

	// RefreshTokenEnc holds the provider refresh credential encrypted with
	// AES-256-GCM, base64-encoded. Empty means the identity cannot be polled.
	RefreshTokenEnc string `json:"-"`

	LastPolledAt *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Pollable reports whether the identity has a stored provider credential.
func (i *Identity) Pollable() bool {
	return i.RefreshTokenEnc != ""
}
