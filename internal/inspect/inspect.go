package inspect

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/ir"
)

// Options controls an inspect.
type Options struct {
	// HideMAC omits MAC and trailer bytes from the report.
	HideMAC bool
	// Lenient records integrity and decrypt failures in the report
	// instead of failing.
	Lenient bool
}

// Inspect reads the archive at path and builds its report.
func Inspect(path string, kr *archive.Keyring, opts Options) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}

	report, err := InspectBytes(data, kr, opts)
	if err != nil {
		var ie *InspectError
		if errors.As(err, &ie) {
			ie.Path = path
		}
		return nil, err
	}
	report.Path = path
	return report, nil
}

// InspectBytes builds the report for an encoded archive.
//
// Every secure vault is verified first, then the trailer. Only after
// verification are payloads decoded and decrypted.
func InspectBytes(data []byte, kr *archive.Keyring, opts Options) (*Report, error) {
	if kr == nil {
		return nil, errors.New("inspect: keyring is required")
	}

	a, err := archive.Decode(data)
	if err != nil {
		// A corrupted length field can make the container undecodable.
		// The trailer tells tampering apart from a truncated or foreign file.
		if errors.Is(err, archive.ErrBadMagic) {
			return nil, &InspectError{Kind: Malformed, Err: err}
		}
		if verr := archive.VerifyBytes(data, kr); errors.Is(verr, archive.ErrMACMismatch) {
			return nil, &InspectError{Kind: IntegrityViolation, Err: verr}
		}
		return nil, &InspectError{Kind: Malformed, Err: err}
	}

	report := &Report{
		Version:      int(a.Version),
		Dependencies: append([]string{}, a.Dependencies...),
		Integrity:    IntegrityOK,
		Vaults:       make([]VaultReport, 0, len(a.Entries)),
	}

	integrity := make([]string, len(a.Entries))
	for i, e := range a.Entries {
		integrity[i] = IntegrityUnsealed
		if !e.Secure() {
			continue
		}
		integrity[i] = IntegrityOK
		if err := archive.VerifyEntry(kr, e); err != nil {
			if !opts.Lenient {
				return nil, &InspectError{Vault: e.Name, Kind: IntegrityViolation, Err: archive.ErrMACMismatch}
			}
			integrity[i] = IntegrityFailed
		}
	}

	if err := archive.VerifyTrailer(a, kr); err != nil {
		if !opts.Lenient {
			return nil, &InspectError{Kind: IntegrityViolation, Err: err}
		}
		report.Integrity = IntegrityFailed
	}
	if !opts.HideMAC {
		report.Trailer = hex.EncodeToString(a.Trailer)
	}

	for i, e := range a.Entries {
		vr := VaultReport{
			Name:       e.Name,
			Optional:   e.Optional(),
			Secure:     e.Secure(),
			Integrity:  integrity[i],
			Notes:      []string{},
			Registries: []RegistryReport{},
		}
		if e.Secure() && !opts.HideMAC {
			vr.MAC = hex.EncodeToString(e.MAC)
		}

		v, err := archive.Decrypt(kr, e)
		if err != nil {
			if !opts.Lenient {
				kind := Decrypt
				if errors.Is(err, archive.ErrMalformed) {
					kind = Malformed
				}
				return nil, &InspectError{Vault: e.Name, Kind: kind, Err: unwrapVault(err)}
			}
			vr.Error = unwrapVault(err).Error()
			report.Vaults = append(report.Vaults, vr)
			continue
		}

		vr.Notes = append(vr.Notes, v.Notes...)
		for _, reg := range v.RegistryNames() {
			rr := RegistryReport{Name: reg, Keys: []KeyReport{}}
			for _, key := range v.Keys(reg) {
				val, _ := v.Get(reg, key)
				rr.Keys = append(rr.Keys, KeyReport{
					Key:   key,
					Type:  ir.Kind(val),
					Value: ir.Native(val),
					raw:   val,
				})
			}
			vr.Registries = append(vr.Registries, rr)
		}
		report.Vaults = append(report.Vaults, vr)
	}
	return report, nil
}

// unwrapVault strips the *archive.VaultError wrapper; InspectError
// already names the vault.
func unwrapVault(err error) error {
	var ve *archive.VaultError
	if errors.As(err, &ve) {
		return ve.Err
	}
	return err
}
