// Package loader resolves --load dependency archives for a compile.
//
// Archives are read in order and verified with the caller's keyring. When
// two archives define the same vault the later one wins, matching repeated
// flag semantics on the command line.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/0bArc/Vault/internal/archive"
	"github.com/0bArc/Vault/internal/logging"
)

// LoadError reports a dependency that could not be used.
type LoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load reasons.
const (
	ReasonNotFound    = "file not found"
	ReasonUnreadable  = "cannot read file"
	ReasonMalformed   = "malformed container"
	ReasonMACMismatch = "MAC mismatch"
)

// Dependency is one loaded archive.
type Dependency struct {
	Path    string
	Archive *archive.Archive
}

// Name is the recorded dependency name: the archive's base file name.
func (d *Dependency) Name() string {
	return filepath.Base(d.Path)
}

// Set is the resolved dependency set of one compile. A nil *Set is an
// empty set.
type Set struct {
	kr    *archive.Keyring
	deps  []*Dependency
	index map[string]int
}

type options struct {
	cache *Cache
}

// Option configures Load.
type Option func(*options)

// WithCache reads archives through c.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

// Load opens, decodes and verifies each archive in paths.
func Load(ctx context.Context, paths []string, kr *archive.Keyring, opts ...Option) (*Set, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.FromContext(ctx)

	s := &Set{kr: kr, index: make(map[string]int)}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a, err := o.read(path)
		if err != nil {
			return nil, err
		}
		if err := archive.Verify(a, kr); err != nil {
			return nil, &LoadError{Path: path, Reason: ReasonMACMismatch, Err: err}
		}

		s.deps = append(s.deps, &Dependency{Path: path, Archive: a})
		for _, e := range a.Entries {
			if prev, ok := s.index[e.Name]; ok {
				logger.Debug("dependency vault overridden", "vault", e.Name,
					"previous", s.deps[prev].Path, "path", path)
			}
			s.index[e.Name] = len(s.deps) - 1
		}
		logger.Debug("dependency loaded", "path", path, "vaults", len(a.Entries))
	}
	return s, nil
}

func (o *options) read(path string) (*archive.Archive, error) {
	if o.cache != nil {
		return o.cache.Get(path)
	}
	return readArchive(path)
}

// readArchive opens path and decodes it. The handle is closed on every path.
func readArchive(path string) (*archive.Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyOpen(path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonUnreadable, Err: err}
	}
	a, err := archive.Decode(data)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: ReasonMalformed, Err: err}
	}
	return a, nil
}

func classifyOpen(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &LoadError{Path: path, Reason: ReasonNotFound, Err: err}
	}
	return &LoadError{Path: path, Reason: ReasonUnreadable, Err: err}
}

// Len returns the number of loaded archives.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.deps)
}

// Dependencies returns the loaded archives in load order.
func (s *Set) Dependencies() []*Dependency {
	if s == nil {
		return nil
	}
	return slices.Clone(s.deps)
}

// Has reports whether any loaded archive defines vault name.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Source returns the path of the archive that provides vault name.
func (s *Set) Source(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.deps[i].Path, true
}

// Vault returns the decrypted content of vault name from the last archive
// defining it. The entry MAC is re-verified on every call.
func (s *Set) Vault(name string) (*archive.Vault, bool, error) {
	if s == nil {
		return nil, false, nil
	}
	i, ok := s.index[name]
	if !ok {
		return nil, false, nil
	}
	dep := s.deps[i]
	v, err := archive.Open(s.kr, dep.Archive.Entry(name))
	if err != nil {
		return nil, true, fmt.Errorf("dependency %s: %w", dep.Path, err)
	}
	return v, true, nil
}

// Names returns the dependency names to record in a compiled archive:
// the base name of each loaded archive plus the names it recorded itself,
// sorted and de-duplicated.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	var names []string
	for _, d := range s.deps {
		names = append(names, d.Name())
		names = append(names, d.Archive.Dependencies...)
	}
	slices.Sort(names)
	return slices.Compact(names)
}
