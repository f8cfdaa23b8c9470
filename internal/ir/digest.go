package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for digests and MACs.
// The version suffix enables future algorithm migration.
const (
	DomainArchive = "svau/archive/v1"
	DomainVault   = "svau/vault/v1"
	DomainNonce   = "svau/nonce/v1"
	DomainSource  = "svau/source/v1"
)

// DomainSeparated returns domain + 0x00 + data.
// The null byte separator prevents domain/data boundary ambiguity; every
// hash and MAC in the engine is computed over this framing.
func DomainSeparated(domain string, data []byte) []byte {
	out := make([]byte, 0, len(domain)+1+len(data))
	out = append(out, domain...)
	out = append(out, 0x00)
	out = append(out, data...)
	return out
}

// Digest computes the hex SHA-256 of data under a domain prefix.
//
// Example: Digest(DomainArchive, archiveBytes)
func Digest(domain string, data []byte) string {
	sum := sha256.Sum256(DomainSeparated(domain, data))
	return hex.EncodeToString(sum[:])
}
