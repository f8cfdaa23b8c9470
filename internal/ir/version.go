package ir

// Version constants for the archive format and engine.
const (
	// FormatVersion is the archive container version written into every header.
	FormatVersion = 1

	// EngineVersion is the Vault engine version.
	EngineVersion = "0.1.0"
)
