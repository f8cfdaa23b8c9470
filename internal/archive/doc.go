// Package archive implements the sealed .svau container.
//
// An archive is a fixed header, the sorted names of the archives it was
// compiled against, one entry per vault and a trailer MAC:
//
//	"SVAU" | version u8 | flags u8 | reserved u16
//	deps:   u16 count, each u16 len + name
//	vaults: u32 count, each:
//	        u16 len + name | u8 flags | u32 len + payload | u8 len + MAC
//	trailer: HMAC-SHA256 over every preceding byte
//
// All integers are big-endian. The payload of an entry is canonical JSON.
// Secure entries carry AES-256-GCM encrypted values and an HMAC-SHA256
// over name, flags and payload. Keys are derived from a Keyring.
package archive
