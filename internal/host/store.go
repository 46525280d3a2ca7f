package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	appDirName          = "campnet-monitor"
	credentialsFileName = "credentials.json"
	storeDirEnvVar      = "CAMPNET_MONITOR_DIR"
)

var ErrNoCredentials = errors.New("credentials not saved")

// Store keeps the percent-encoded credentials pair in a JSON file.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	expanded, err := expandPath(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: filepath.Clean(expanded)}, nil
}

// DefaultDir resolves the monitor's config directory, honoring
// CAMPNET_MONITOR_DIR.
func DefaultDir() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv(storeDirEnvVar)); explicit != "" {
		return expandPath(explicit)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, credentialsFileName)
}

func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}
	return nil
}

// Load returns the stored payload, or ErrNoCredentials when nothing is saved.
func (s *Store) Load() (CredentialsPayload, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return CredentialsPayload{}, ErrNoCredentials
		}
		return CredentialsPayload{}, fmt.Errorf("read credentials file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return CredentialsPayload{}, fmt.Errorf("decode credentials file %s: invalid json", s.Path())
	}
	parsed := gjson.ParseBytes(data)
	payload := CredentialsPayload{
		Username: parsed.Get("username").String(),
		Password: parsed.Get("password").String(),
	}
	if payload.Username == "" && payload.Password == "" {
		return CredentialsPayload{}, ErrNoCredentials
	}
	return payload, nil
}

// Save writes the payload atomically with owner-only permissions.
func (s *Store) Save(p CredentialsPayload) error {
	if err := s.EnsureDir(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, credentialsFileName+".*")
	if err != nil {
		return fmt.Errorf("create temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path()); err != nil {
		return fmt.Errorf("replace credentials file: %w", err)
	}
	return nil
}

// Delete removes saved credentials. Deleting nothing is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credentials file: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
