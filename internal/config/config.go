package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	envSourceURL   = "COURSEMOVER_SOURCE_URL"
	envSourceToken = "COURSEMOVER_SOURCE_TOKEN"
	envTargetURL   = "COURSEMOVER_TARGET_URL"
	envTargetToken = "COURSEMOVER_TARGET_TOKEN"
	envDataDir     = "COURSEMOVER_DATA_DIR"

	idMapFileName    = "id_map.json"
	manifestFileName = "upload_manifest.json"
	runLogFileName   = "runs.db"
)

// Instance holds the credentials for one platform instance.
type Instance struct {
	BaseURL string
	Token   string
}

// Config holds resolved configuration for the data directory and the two
// platform instances.
type Config struct {
	Source  Instance
	Target  Instance
	DataDir string // export tree, id map, manifest and run journal live here
}

// Resolve reads configuration from the environment. The data directory
// defaults to $PWD/.coursemover when COURSEMOVER_DATA_DIR is unset.
// Credentials are validated lazily by RequireSource/RequireTarget so that
// offline commands (rewrite, status) work without tokens.
func Resolve() (*Config, error) {
	dataDir := os.Getenv(envDataDir)
	if dataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dataDir = filepath.Join(cwd, ".coursemover")
	}

	return &Config{
		Source: Instance{
			BaseURL: strings.TrimRight(os.Getenv(envSourceURL), "/"),
			Token:   os.Getenv(envSourceToken),
		},
		Target: Instance{
			BaseURL: strings.TrimRight(os.Getenv(envTargetURL), "/"),
			Token:   os.Getenv(envTargetToken),
		},
		DataDir: dataDir,
	}, nil
}

// IDMapPath returns the path of the id map file for a course pair.
func (c *Config) IDMapPath(sourceCourseID, targetCourseID int) string {
	return filepath.Join(c.DataDir, fmt.Sprintf("id_map_%d_to_%d.json", sourceCourseID, targetCourseID))
}

// DefaultIDMapPath returns the path of the shared id map file used when no
// course pair is known (offline rewrite).
func (c *Config) DefaultIDMapPath() string {
	return filepath.Join(c.DataDir, idMapFileName)
}

// ManifestPath returns the path of the upload manifest.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, manifestFileName)
}

// RunLogPath returns the path of the run journal database.
func (c *Config) RunLogPath() string {
	return filepath.Join(c.DataDir, runLogFileName)
}

// ExportDir returns the export tree root for a source course.
func (c *Config) ExportDir(courseID int) string {
	return filepath.Join(c.DataDir, "export", fmt.Sprintf("course_%d", courseID))
}

// RequireSource validates that the source instance is fully configured.
func (c *Config) RequireSource() error {
	return requireInstance("source", c.Source, envSourceURL, envSourceToken)
}

// RequireTarget validates that the target instance is fully configured.
func (c *Config) RequireTarget() error {
	return requireInstance("target", c.Target, envTargetURL, envTargetToken)
}

func requireInstance(name string, inst Instance, urlVar, tokenVar string) error {
	if inst.BaseURL == "" {
		return fmt.Errorf("%s instance not configured: set %s", name, urlVar)
	}
	u, err := url.Parse(inst.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s is not an absolute URL: %q", urlVar, inst.BaseURL)
	}
	if inst.Token == "" {
		return fmt.Errorf("%s instance not configured: set %s", name, tokenVar)
	}
	return nil
}

// ErrNoData is returned when a command needs the data directory but it does
// not exist yet.
var ErrNoData = errors.New("data directory not found; run an export first")

// Exists checks if the data directory exists. It returns an error for
// non-existence failures (e.g. permission errors).
func (c *Config) Exists() (bool, error) {
	if _, err := os.Stat(c.DataDir); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
