package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths stores resolved runtime file locations for config, history and logs.
type Paths struct {
	RootDir    string
	ConfigFile string
	DBFile     string
	LogFile    string
}

// ResolvePaths places everything under the user config dir.
func ResolvePaths() (Paths, error) {
	cfgRoot, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve config dir: %w", err)
	}

	return ResolvePathsIn(filepath.Join(cfgRoot, Name))
}

// ResolvePathsIn uses root as the app directory, creating it if needed.
func ResolvePathsIn(root string) (Paths, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return Paths{}, fmt.Errorf("create app config dir: %w", err)
	}

	return Paths{
		RootDir:    root,
		ConfigFile: filepath.Join(root, ConfigFilename),
		DBFile:     filepath.Join(root, DBFilename),
		LogFile:    filepath.Join(root, LogFilename),
	}, nil
}

// WithDBFile overrides the history database location when set.
func (p Paths) WithDBFile(path string) Paths {
	if path != "" {
		p.DBFile = path
	}
	return p
}
