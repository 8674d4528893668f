package runindex

import (
	"path/filepath"

	"codeberg.org/meshalyzer/rigctl/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBName  = "runs.db"
	backupDirName  = "backups"
)

type Config struct {
	DBPath  string
	Enabled bool
}

// DefaultConfig places the index next to the saved runs.
func DefaultConfig(dataDir string) Config {
	return Config{
		DBPath:  filepath.Join(dataDir, defaultDBName),
		Enabled: true,
	}
}

func (c Config) Validate() error {
	// Only validate DBPath if the index is enabled
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	return filepath.Join(filepath.Dir(c.DBPath), backupDirName)
}
