package archive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"maps"
	"slices"

	"github.com/0bArc/Vault/internal/ir"
)

// Vault is the plaintext content of one entry: registries of keyed values
// plus notes. The compiler builds it by replay; Open recovers it.
type Vault struct {
	Name       string
	Optional   bool
	Secure     bool
	Notes      []string
	Registries map[string]map[string]ir.Value
}

// NewVault returns an empty vault.
func NewVault(name string) *Vault {
	return &Vault{Name: name, Registries: make(map[string]map[string]ir.Value)}
}

// Clone returns a copy whose registries can be modified independently.
// Values themselves are immutable and shared.
func (v *Vault) Clone() *Vault {
	out := &Vault{
		Name:       v.Name,
		Optional:   v.Optional,
		Secure:     v.Secure,
		Notes:      slices.Clone(v.Notes),
		Registries: make(map[string]map[string]ir.Value, len(v.Registries)),
	}
	for reg, keys := range v.Registries {
		out.Registries[reg] = maps.Clone(keys)
	}
	return out
}

// Declare creates reg if it does not exist yet.
func (v *Vault) Declare(reg string) {
	if _, ok := v.Registries[reg]; !ok {
		v.Registries[reg] = make(map[string]ir.Value)
	}
}

// HasRegistry reports whether reg exists.
func (v *Vault) HasRegistry(reg string) bool {
	_, ok := v.Registries[reg]
	return ok
}

// Get returns the value stored under reg/key.
func (v *Vault) Get(reg, key string) (ir.Value, bool) {
	val, ok := v.Registries[reg][key]
	return val, ok
}

// Set stores val under reg/key, declaring reg if needed.
func (v *Vault) Set(reg, key string, val ir.Value) {
	v.Declare(reg)
	v.Registries[reg][key] = val
}

// RegistryNames returns registry names in canonical order.
func (v *Vault) RegistryNames() []string {
	names := slices.Collect(maps.Keys(v.Registries))
	slices.SortFunc(names, ir.CompareKeys)
	return names
}

// Keys returns the keys of reg in canonical order.
func (v *Vault) Keys(reg string) []string {
	keys := slices.Collect(maps.Keys(v.Registries[reg]))
	slices.SortFunc(keys, ir.CompareKeys)
	return keys
}

// Seal serializes v into an entry. Secure vaults have every value
// encrypted and the entry MACed. Output is deterministic: identical
// content under the same keyring yields identical bytes.
func Seal(kr *Keyring, v *Vault) (*Entry, error) {
	var flags EntryFlags
	if v.Optional {
		flags |= FlagOptional
	}
	var aead cipher.AEAD
	var nonceKey []byte
	if v.Secure {
		flags |= FlagSecure
		encKey, err := kr.vaultKey(v.Name)
		if err != nil {
			return nil, err
		}
		if aead, err = newAEAD(encKey); err != nil {
			return nil, err
		}
		if nonceKey, err = kr.nonceKey(v.Name); err != nil {
			return nil, err
		}
	}

	registries := make(map[string]any, len(v.Registries))
	for reg, keys := range v.Registries {
		cells := make(map[string]any, len(keys))
		for key, val := range keys {
			if !v.Secure {
				cells[key] = map[string]any{"value": val}
				continue
			}
			sealed, err := encryptValue(aead, nonceKey, reg, key, val)
			if err != nil {
				return nil, fmt.Errorf("encrypt %s:%s: %w", reg, key, err)
			}
			cells[key] = map[string]any{"cipher": sealed}
		}
		registries[reg] = cells
	}

	notes := make([]string, len(v.Notes))
	copy(notes, v.Notes)

	payload, err := ir.MarshalCanonical(map[string]any{
		"name":       v.Name,
		"notes":      notes,
		"optional":   v.Optional,
		"registries": registries,
		"secure":     v.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize vault %q: %w", v.Name, err)
	}

	e := &Entry{Name: v.Name, Flags: flags, Payload: payload}
	if v.Secure {
		e.MAC = kr.entryMAC(e)
	}
	return e, nil
}

// Open verifies e and returns its decrypted content.
func Open(kr *Keyring, e *Entry) (*Vault, error) {
	if err := VerifyEntry(kr, e); err != nil {
		return nil, err
	}
	return Decrypt(kr, e)
}

// Decrypt parses and decrypts e without checking its MAC.
func Decrypt(kr *Keyring, e *Entry) (*Vault, error) {
	doc, err := ir.FromJSON(e.Payload)
	if err != nil {
		return nil, &VaultError{Vault: e.Name, Err: fmt.Errorf("%w: payload: %v", ErrMalformed, err)}
	}
	obj, ok := doc.(ir.Object)
	if !ok {
		return nil, malformedPayload(e, "payload is not an object")
	}
	if name, _ := obj["name"].(ir.String); string(name) != e.Name {
		return nil, malformedPayload(e, fmt.Sprintf("payload names vault %q", string(name)))
	}

	v := NewVault(e.Name)
	v.Optional = e.Optional()
	v.Secure = e.Secure()

	if notes, ok := obj["notes"].(ir.Array); ok {
		for _, n := range notes {
			s, ok := n.(ir.String)
			if !ok {
				return nil, malformedPayload(e, "note is not a string")
			}
			v.Notes = append(v.Notes, string(s))
		}
	}

	regs, ok := obj["registries"].(ir.Object)
	if !ok {
		return nil, malformedPayload(e, "registries missing")
	}

	var aead cipher.AEAD
	if v.Secure {
		encKey, err := kr.vaultKey(e.Name)
		if err != nil {
			return nil, err
		}
		if aead, err = newAEAD(encKey); err != nil {
			return nil, err
		}
	}

	for reg, cellsVal := range regs {
		cells, ok := cellsVal.(ir.Object)
		if !ok {
			return nil, malformedPayload(e, fmt.Sprintf("registry %q is not an object", reg))
		}
		v.Declare(reg)
		for key, cellVal := range cells {
			cell, ok := cellVal.(ir.Object)
			if !ok {
				return nil, malformedPayload(e, fmt.Sprintf("cell %s:%s is not an object", reg, key))
			}
			val, err := openCell(aead, reg, key, cell)
			if err != nil {
				return nil, &VaultError{Vault: e.Name, Err: err}
			}
			v.Registries[reg][key] = val
		}
	}
	return v, nil
}

func malformedPayload(e *Entry, reason string) error {
	return &VaultError{Vault: e.Name, Err: fmt.Errorf("%w: %s", ErrMalformed, reason)}
}

func openCell(aead cipher.AEAD, reg, key string, cell ir.Object) (ir.Value, error) {
	if val, ok := cell["value"]; ok {
		return val, nil
	}
	sealed, ok := cell["cipher"].(ir.String)
	if !ok {
		return nil, fmt.Errorf("%w: cell %s:%s has no value", ErrMalformed, reg, key)
	}
	if aead == nil {
		return nil, fmt.Errorf("%w: encrypted cell %s:%s in unsealed vault", ErrMalformed, reg, key)
	}
	return decryptValue(aead, reg, key, string(sealed))
}

// DecryptError reports a value that failed authenticated decryption.
type DecryptError struct {
	Registry string
	Key      string
	Err      error
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decrypt %s:%s: %v", e.Registry, e.Key, e.Err)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

// encryptValue seals the canonical JSON of val. The nonce is an HMAC of
// the plaintext under the vault's nonce key so sealing stays
// deterministic; a nonce only repeats for an identical (registry, key,
// value) triple.
func encryptValue(aead cipher.AEAD, nonceKey []byte, reg, key string, val ir.Value) (string, error) {
	plaintext, err := ir.MarshalCanonical(val)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, nonceKey)
	mac.Write(ir.DomainSeparated(ir.DomainNonce, nonceInput(reg, key, plaintext)))
	nonce := mac.Sum(nil)[:aead.NonceSize()]

	out := aead.Seal(nonce, nonce, plaintext, []byte(reg+":"+key))
	return base64.StdEncoding.EncodeToString(out), nil
}

func decryptValue(aead cipher.AEAD, reg, key, sealed string) (ir.Value, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, &DecryptError{Registry: reg, Key: key, Err: err}
	}
	nonceSize := aead.NonceSize()
	if len(raw) < nonceSize {
		return nil, &DecryptError{Registry: reg, Key: key, Err: fmt.Errorf("ciphertext too short")}
	}
	plaintext, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(reg+":"+key))
	if err != nil {
		return nil, &DecryptError{Registry: reg, Key: key, Err: err}
	}
	val, err := ir.FromJSON(plaintext)
	if err != nil {
		return nil, &DecryptError{Registry: reg, Key: key, Err: err}
	}
	return val, nil
}

func nonceInput(reg, key string, plaintext []byte) []byte {
	data := make([]byte, 0, len(reg)+len(key)+2+len(plaintext))
	data = append(data, reg...)
	data = append(data, 0x00)
	data = append(data, key...)
	data = append(data, 0x00)
	return append(data, plaintext...)
}
