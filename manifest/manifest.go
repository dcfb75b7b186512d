// Package manifest handles curly.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("curly.manifest")

// FileName is the name of the manifest file.
const FileName = "curly.toml"

// ErrNoManifest is returned by FindAndLoad when no curly.toml exists in
// the start directory or any of its parents.
var ErrNoManifest = errors.New("no " + FileName + " found")

// Manifest represents a curly.toml project configuration.
type Manifest struct {
	Project Project `toml:"project" json:"project"`
	Engine  Engine  `toml:"engine" json:"engine"`
	Cache   Cache   `toml:"cache" json:"cache"`
	Server  Server  `toml:"server" json:"server"`

	// Dir is the directory containing the curly.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name" json:"name"`
	Entry string `toml:"entry" json:"entry"`
}

// Engine configures the virtual machine.
type Engine struct {
	MaxSteps   int  `toml:"max-steps" json:"max-steps"`
	StackLimit int  `toml:"stack-limit" json:"stack-limit"`
	Trace      bool `toml:"trace" json:"trace"`
}

// Cache configures the compiled-program cache.
type Cache struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// Server configures the evaluation service listeners.
type Server struct {
	Addr     string `toml:"addr" json:"addr"`
	GRPCAddr string `toml:"grpc-addr" json:"grpc-addr"`
}

// Default returns the configuration used when no curly.toml exists.
func Default() *Manifest {
	return &Manifest{
		Engine: Engine{
			MaxSteps:   1_000_000,
			StackLimit: 1 << 16,
		},
		Cache: Cache{
			Path: filepath.Join(".curly", "cache.db"),
		},
		Server: Server{
			Addr:     ":4567",
			GRPCAddr: ":4568",
		},
	}
}

// Load parses the curly.toml file in dir. Keys absent from the file keep
// their Default values. The result is validated before it is returned.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	md, err := toml.Decode(string(data), m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded %s", path)
	return m, nil
}

// FindAndLoad walks up from startDir to find a curly.toml file, then
// loads and returns the manifest. It returns ErrNoManifest if none is
// found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoManifest
		}
		dir = parent
	}
}

// CachePath returns the cache database path, resolved against the
// manifest directory when relative.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// EntryPath returns the absolute path of the entry script, or "" when
// none is configured.
func (m *Manifest) EntryPath() string {
	if m.Project.Entry == "" {
		return ""
	}
	if filepath.IsAbs(m.Project.Entry) || m.Dir == "" {
		return m.Project.Entry
	}
	return filepath.Join(m.Dir, m.Project.Entry)
}

// String renders the manifest back to TOML.
func (m *Manifest) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(m); err != nil {
		return fmt.Sprintf("<manifest: %v>", err)
	}
	return b.String()
}
