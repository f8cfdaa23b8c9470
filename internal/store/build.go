package store

import (
	"fmt"
	"time"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/ir"
)

// Build is one ledger record: a successful compile of SourcePath into
// OutputPath.
type Build struct {
	ID            string       `json:"id" yaml:"id"`
	Seq           int64        `json:"seq" yaml:"seq"`
	SourcePath    string       `json:"source_path" yaml:"source_path"`
	SourceDigest  string       `json:"source_digest" yaml:"source_digest"`
	OutputPath    string       `json:"output_path" yaml:"output_path"`
	ArchiveDigest string       `json:"archive_digest" yaml:"archive_digest"`
	Dependencies  []string     `json:"dependencies" yaml:"dependencies"`
	EngineVersion string       `json:"engine_version" yaml:"engine_version"`
	FormatVersion int          `json:"format_version" yaml:"format_version"`
	CreatedAt     time.Time    `json:"created_at" yaml:"created_at"`
	Vaults        []BuildVault `json:"vaults" yaml:"vaults"`
}

// BuildVault summarizes one emitted vault. Values are never recorded.
type BuildVault struct {
	Name       string `json:"name" yaml:"name"`
	Optional   bool   `json:"optional" yaml:"optional"`
	Secure     bool   `json:"secure" yaml:"secure"`
	Registries int    `json:"registries" yaml:"registries"`
	Keys       int    `json:"keys" yaml:"keys"`
}

// NewBuild assembles a ledger record for an encoded archive.
// The archive is opened with kr so key counts are available for secure
// vaults; a MAC failure here means the archive was not produced by kr.
func NewBuild(sourcePath string, source []byte, outputPath string, encoded []byte, a *archive.Archive, kr *archive.Keyring) (*Build, error) {
	b := &Build{
		SourcePath:    sourcePath,
		SourceDigest:  ir.Digest(ir.DomainSource, source),
		OutputPath:    outputPath,
		ArchiveDigest: ir.Digest(ir.DomainArchive, encoded),
		Dependencies:  append([]string{}, a.Dependencies...),
		EngineVersion: ir.EngineVersion,
		FormatVersion: int(a.Version),
		Vaults:        make([]BuildVault, 0, len(a.Entries)),
	}

	for _, e := range a.Entries {
		v, err := archive.Open(kr, e)
		if err != nil {
			return nil, fmt.Errorf("summarize vault %q: %w", e.Name, err)
		}
		summary := BuildVault{
			Name:     e.Name,
			Optional: e.Optional(),
			Secure:   e.Secure(),
		}
		for _, reg := range v.RegistryNames() {
			summary.Registries++
			summary.Keys += len(v.Keys(reg))
		}
		b.Vaults = append(b.Vaults, summary)
	}
	return b, nil
}
