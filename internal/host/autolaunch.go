package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const autostartFileName = appDirName + ".desktop"

var ErrAutolaunchUnsupported = errors.New("start at login is only supported on linux desktops")

// Autostart manages an XDG autostart entry that launches the monitor at login.
type Autostart struct {
	dir     string
	command string
	goos    string
}

// NewAutostart uses $XDG_CONFIG_HOME/autostart (or ~/.config/autostart) when
// dir is empty, and the running executable when command is empty.
func NewAutostart(dir, command string) (*Autostart, error) {
	if strings.TrimSpace(dir) == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config directory: %w", err)
		}
		dir = filepath.Join(base, "autostart")
	}
	if strings.TrimSpace(command) == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		command = exe + " tui"
	}
	return &Autostart{dir: dir, command: command, goos: runtime.GOOS}, nil
}

func (a *Autostart) Path() string {
	return filepath.Join(a.dir, autostartFileName)
}

func (a *Autostart) Enabled() bool {
	info, err := os.Stat(a.Path())
	return err == nil && !info.IsDir()
}

func (a *Autostart) Set(enabled bool) error {
	if a.goos != "linux" {
		return ErrAutolaunchUnsupported
	}
	if !enabled {
		if err := os.Remove(a.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove autostart entry: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create autostart dir: %w", err)
	}
	entry := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=Campnet Monitor",
		"Comment=Campus network data balance monitor",
		"Exec=" + a.command,
		"Terminal=true",
		"X-GNOME-Autostart-enabled=true",
		"",
	}, "\n")
	if err := os.WriteFile(a.Path(), []byte(entry), 0o644); err != nil {
		return fmt.Errorf("write autostart entry: %w", err)
	}
	return nil
}
