// Package inspect opens a compiled archive and produces a Report: every
// vault with its registries, keys, decrypted values and notes.
//
// Integrity is checked before anything is shown. Each secure vault's MAC
// and the archive trailer are verified, and a mismatch fails the inspect
// with an IntegrityViolation unless Options.Lenient is set, in which case
// the report marks the affected vault (or the archive) as failed.
// Options.HideMAC removes MAC bytes from the report; verification still
// runs.
package inspect
