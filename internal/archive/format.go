package archive

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/0bArc/Vault/internal/ir"
)

// Magic opens every archive.
const Magic = "SVAU"

// Version is the only container version this package reads and writes.
const Version = ir.FormatVersion

// MACSize is the length of entry and trailer MACs.
const MACSize = sha256.Size

const (
	headerSize  = 8
	flagTrailer = 1 << 0
)

// Sentinel errors. Decode failures wrap ErrMalformed; ErrBadMagic and
// ErrUnsupportedVersion also match ErrMalformed.
var (
	ErrMalformed          = errors.New("malformed archive")
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported archive version")
	ErrMACMismatch        = errors.New("MAC mismatch")
)

// EntryFlags are the per-vault flag bits.
type EntryFlags uint8

const (
	FlagOptional EntryFlags = 1 << 0
	FlagSecure   EntryFlags = 1 << 1
)

// Entry is one sealed vault record.
type Entry struct {
	Name    string
	Flags   EntryFlags
	Payload []byte
	MAC     []byte
}

// Optional reports whether the vault was declared with `vault?`.
func (e *Entry) Optional() bool { return e.Flags&FlagOptional != 0 }

// Secure reports whether the entry is sealed and carries a MAC.
func (e *Entry) Secure() bool { return e.Flags&FlagSecure != 0 }

// Archive is a decoded container. Archives are immutable once encoded.
type Archive struct {
	Version      uint8
	Dependencies []string
	Entries      []*Entry
	Trailer      []byte

	// signed holds the bytes covered by Trailer after Decode or Encode.
	signed []byte
}

// Entry returns the entry named name, or nil.
func (a *Archive) Entry(name string) *Entry {
	for _, e := range a.Entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Encode serializes a and appends the trailer MAC computed with kr.
// Dependencies are written sorted and de-duplicated.
func Encode(a *Archive, kr *Keyring) ([]byte, error) {
	if kr == nil {
		return nil, errors.New("encode archive: keyring is required")
	}

	deps := slices.Clone(a.Dependencies)
	slices.Sort(deps)
	deps = slices.Compact(deps)
	if len(deps) > math.MaxUint16 {
		return nil, fmt.Errorf("encode archive: too many dependencies (%d)", len(deps))
	}
	if uint64(len(a.Entries)) > math.MaxUint32 {
		return nil, fmt.Errorf("encode archive: too many vaults (%d)", len(a.Entries))
	}

	var buf bytes.Buffer
	buf.WriteString(Magic)
	buf.WriteByte(Version)
	buf.WriteByte(flagTrailer)
	buf.Write([]byte{0, 0})

	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(deps))))
	for _, d := range deps {
		if err := writeString16(&buf, d); err != nil {
			return nil, fmt.Errorf("encode dependency: %w", err)
		}
	}

	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(a.Entries))))
	for _, e := range a.Entries {
		if err := writeEntry(&buf, e); err != nil {
			return nil, fmt.Errorf("encode vault %q: %w", e.Name, err)
		}
	}

	signed := bytes.Clone(buf.Bytes())
	trailer := kr.trailerMAC(signed)
	buf.Write(trailer)

	a.Version = Version
	a.Dependencies = deps
	a.Trailer = trailer
	a.signed = signed
	return buf.Bytes(), nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long (%d bytes)", len(s))
	}
	buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(s))))
	buf.WriteString(s)
	return nil
}

func writeEntry(buf *bytes.Buffer, e *Entry) error {
	if err := writeString16(buf, e.Name); err != nil {
		return err
	}
	buf.WriteByte(byte(e.Flags))
	if uint64(len(e.Payload)) > math.MaxUint32 {
		return fmt.Errorf("payload too large (%d bytes)", len(e.Payload))
	}
	buf.Write(binary.BigEndian.AppendUint32(nil, uint32(len(e.Payload))))
	buf.Write(e.Payload)
	if len(e.MAC) > math.MaxUint8 {
		return fmt.Errorf("MAC too long (%d bytes)", len(e.MAC))
	}
	buf.WriteByte(byte(len(e.MAC)))
	buf.Write(e.MAC)
	return nil
}

// Decode parses a container. It checks structure only; use Verify to
// authenticate the result.
func Decode(data []byte) (*Archive, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrMalformed)
	}
	if string(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, ErrBadMagic)
	}
	if data[4] != Version {
		return nil, fmt.Errorf("%w: %w %d", ErrMalformed, ErrUnsupportedVersion, data[4])
	}
	flags := data[5]
	if flags&^flagTrailer != 0 || data[6] != 0 || data[7] != 0 {
		return nil, fmt.Errorf("%w: reserved header bits set", ErrMalformed)
	}

	body := data
	a := &Archive{Version: data[4]}
	if flags&flagTrailer != 0 {
		if len(data) < headerSize+MACSize {
			return nil, fmt.Errorf("%w: truncated trailer", ErrMalformed)
		}
		body = data[:len(data)-MACSize]
		a.Trailer = bytes.Clone(data[len(data)-MACSize:])
		a.signed = bytes.Clone(body)
	}

	r := &reader{data: body, off: headerSize}

	ndeps, err := r.uint16("dependency count")
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(ndeps); i++ {
		d, err := r.string16(fmt.Sprintf("dependency %d", i))
		if err != nil {
			return nil, err
		}
		a.Dependencies = append(a.Dependencies, d)
	}

	nvaults, err := r.uint32("vault count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nvaults; i++ {
		e, err := r.entry(int(i))
		if err != nil {
			return nil, err
		}
		a.Entries = append(a.Entries, e)
	}

	if r.off != len(body) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(body)-r.off)
	}
	return a, nil
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int, what string) ([]byte, error) {
	if n < 0 || len(r.data)-r.off < n {
		return nil, fmt.Errorf("%w: truncated %s", ErrMalformed, what)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint8(what string) (uint8, error) {
	b, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16(what string) (uint16, error) {
	b, err := r.take(2, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint32(what string) (uint32, error) {
	b, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) string16(what string) (string, error) {
	n, err := r.uint16(what + " length")
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) entry(i int) (*Entry, error) {
	what := fmt.Sprintf("vault %d", i)
	name, err := r.string16(what + " name")
	if err != nil {
		return nil, err
	}
	flags, err := r.uint8(what + " flags")
	if err != nil {
		return nil, err
	}
	if EntryFlags(flags)&^(FlagOptional|FlagSecure) != 0 {
		return nil, fmt.Errorf("%w: vault %q has unknown flags %#x", ErrMalformed, name, flags)
	}
	size, err := r.uint32(what + " payload length")
	if err != nil {
		return nil, err
	}
	payload, err := r.take(int(size), what+" payload")
	if err != nil {
		return nil, err
	}
	macLen, err := r.uint8(what + " MAC length")
	if err != nil {
		return nil, err
	}
	mac, err := r.take(int(macLen), what+" MAC")
	if err != nil {
		return nil, err
	}

	e := &Entry{Name: name, Flags: EntryFlags(flags), Payload: bytes.Clone(payload)}
	if macLen > 0 {
		e.MAC = bytes.Clone(mac)
	}
	if e.Secure() && len(e.MAC) != MACSize {
		return nil, fmt.Errorf("%w: secure vault %q has %d-byte MAC", ErrMalformed, name, len(e.MAC))
	}
	return e, nil
}

// VaultError reports a verification failure of a single entry.
type VaultError struct {
	Vault string
	Err   error
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("vault %q: %v", e.Vault, e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// VerifyEntry checks the MAC of a secure entry. Unsealed entries pass.
func VerifyEntry(kr *Keyring, e *Entry) error {
	if !e.Secure() {
		return nil
	}
	if !hmac.Equal(e.MAC, kr.entryMAC(e)) {
		return &VaultError{Vault: e.Name, Err: ErrMACMismatch}
	}
	return nil
}

// VerifyTrailer checks the trailer of a decoded archive.
func VerifyTrailer(a *Archive, kr *Keyring) error {
	if a.Trailer == nil {
		return fmt.Errorf("archive trailer: %w: no trailer present", ErrMACMismatch)
	}
	if !hmac.Equal(a.Trailer, kr.trailerMAC(a.signed)) {
		return fmt.Errorf("archive trailer: %w", ErrMACMismatch)
	}
	return nil
}

// VerifyBytes checks the trailer of raw archive bytes without decoding
// them. It lets callers tell tampering apart from a corrupt container.
func VerifyBytes(data []byte, kr *Keyring) error {
	if len(data) < MACSize {
		return fmt.Errorf("%w: too short for a trailer", ErrMalformed)
	}
	signed := data[:len(data)-MACSize]
	if !hmac.Equal(data[len(data)-MACSize:], kr.trailerMAC(signed)) {
		return fmt.Errorf("archive trailer: %w", ErrMACMismatch)
	}
	return nil
}

// Verify checks every secure entry and then the trailer. The first failure
// is returned; entry failures are *VaultError.
func Verify(a *Archive, kr *Keyring) error {
	for _, e := range a.Entries {
		if err := VerifyEntry(kr, e); err != nil {
			return err
		}
	}
	return VerifyTrailer(a, kr)
}

// entryMACInput frames name, flags and payload under the vault domain.
func entryMACInput(e *Entry) []byte {
	data := make([]byte, 0, len(e.Name)+2+len(e.Payload))
	data = append(data, e.Name...)
	data = append(data, 0x00, byte(e.Flags))
	data = append(data, e.Payload...)
	return ir.DomainSeparated(ir.DomainVault, data)
}

func signedTrailerInput(signed []byte) []byte {
	return ir.DomainSeparated(ir.DomainArchive, signed)
}
