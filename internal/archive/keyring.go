package archive

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of the master key in bytes.
const KeySize = 32

// HKDF info labels. Each derived key is used for exactly one purpose.
const (
	infoMAC     = "svau/mac/v1"
	infoEncrypt = "svau/enc/v1"
	infoNonce   = "svau/nonce-key/v1"
	infoArchive = "svau/archive-key/v1"
)

// Keyring holds the master key and build token an archive is sealed with.
// The same Keyring is required to verify and decrypt it.
type Keyring struct {
	master     []byte
	macKey     []byte
	archiveKey []byte
}

// NewKeyring derives the sealing keys from a 32-byte master key and a
// build token. The token is mixed into the archive trailer key only, so
// archives sealed under different tokens fail trailer verification.
func NewKeyring(master []byte, token string) (*Keyring, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master))
	}
	if token == "" {
		return nil, fmt.Errorf("token is required")
	}

	kr := &Keyring{master: append([]byte(nil), master...)}
	var err error
	if kr.macKey, err = derive(master, nil, infoMAC); err != nil {
		return nil, err
	}
	if kr.archiveKey, err = derive(master, []byte(token), infoArchive); err != nil {
		return nil, err
	}
	return kr, nil
}

// ParseKeyring builds a Keyring from a hex-encoded master key.
func ParseKeyring(masterHex, token string) (*Keyring, error) {
	master, err := hex.DecodeString(masterHex)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return NewKeyring(master, token)
}

// vaultKey returns the AES-256 key for one vault.
func (k *Keyring) vaultKey(vault string) ([]byte, error) {
	return derive(k.master, nil, infoEncrypt+"\x00"+vault)
}

// nonceKey returns the HMAC key nonces of one vault are derived with.
func (k *Keyring) nonceKey(vault string) ([]byte, error) {
	return derive(k.master, nil, infoNonce+"\x00"+vault)
}

func (k *Keyring) entryMAC(e *Entry) []byte {
	mac := hmac.New(sha256.New, k.macKey)
	mac.Write(entryMACInput(e))
	return mac.Sum(nil)
}

func (k *Keyring) trailerMAC(signed []byte) []byte {
	mac := hmac.New(sha256.New, k.archiveKey)
	mac.Write(signedTrailerInput(signed))
	return mac.Sum(nil)
}

func derive(secret, salt []byte, info string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}
