// Package mint handles Solana token mint address validation. Mint
// addresses are base58-encoded 32-byte public keys; anything else is
// rejected before it can reach the swap gateway.
package mint

import (
	"errors"
	"regexp"
)

// Well-known mints.
const (
	// Native is the wrapped-SOL mint, used as the native-asset identifier.
	Native = "So11111111111111111111111111111111111111112"

	// USDC is the USD Coin mint on Solana mainnet.
	USDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// addressRegex matches a base58-encoded Solana public key.
// Base58 excludes 0, O, I and l; 32 bytes encode to 32–44 characters.
var addressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

// ErrInvalidMint is returned for strings that cannot be a mint address.
var ErrInvalidMint = errors.New("mint: invalid token mint address")

// Validate checks that s is a plausible Solana mint address.
func Validate(s string) error {
	if !addressRegex.MatchString(s) {
		return ErrInvalidMint
	}
	return nil
}

// IsValid is a convenience wrapper around Validate.
func IsValid(s string) bool {
	return Validate(s) == nil
}
