package inspect

import "fmt"

// Kind classifies an InspectError.
type Kind int

const (
	// IntegrityViolation means a vault MAC or the trailer did not verify.
	IntegrityViolation Kind = iota + 1
	// Malformed means the container could not be decoded.
	Malformed
	// Decrypt means a verified vault could not be decrypted.
	Decrypt
)

func (k Kind) String() string {
	switch k {
	case IntegrityViolation:
		return "integrity violation"
	case Malformed:
		return "malformed archive"
	case Decrypt:
		return "decrypt failed"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// InspectError is returned when an archive cannot be shown.
// Vault is empty when the failure concerns the whole archive.
type InspectError struct {
	Path  string
	Vault string
	Kind  Kind
	Err   error
}

func (e *InspectError) Error() string {
	prefix := "inspect"
	if e.Path != "" {
		prefix = "inspect " + e.Path
	}
	if e.Vault != "" {
		return fmt.Sprintf("%s: vault %q: %s: %v", prefix, e.Vault, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Kind, e.Err)
}

func (e *InspectError) Unwrap() error {
	return e.Err
}
