package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultUnitPath = "/etc/systemd/system/automation-presence.service"

// ServiceOptions describes the systemd unit that runs the presence service.
type ServiceOptions struct {
	UnitPath   string
	User       string
	WorkDir    string
	Executable string
	ConfigFile string

	// After lists extra units to order after, e.g. the MQTT broker.
	After []string
}

// RenderServiceUnit returns the unit file contents for opts.
func RenderServiceUnit(opts ServiceOptions) (string, error) {
	if opts.Executable == "" {
		return "", fmt.Errorf("executable path is required")
	}

	after := append([]string{"network-online.target"}, opts.After...)
	execCmd := opts.Executable
	if opts.ConfigFile != "" {
		execCmd += " --config " + opts.ConfigFile
	}

	var user string
	if opts.User != "" {
		user = fmt.Sprintf("User=%s\n", opts.User)
	}
	var workdir string
	if opts.WorkDir != "" {
		workdir = fmt.Sprintf("WorkingDirectory=%s\n", opts.WorkDir)
	}

	unit := fmt.Sprintf(`[Unit]
Description=Automation presence service
After=%s
Wants=network-online.target

[Service]
Type=simple
%s%sExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, strings.Join(after, " "), user, workdir, execCmd)

	return unit, nil
}

// InstallService writes the unit file. Enabling it is left to systemctl.
func InstallService(opts ServiceOptions) error {
	if opts.UnitPath == "" {
		opts.UnitPath = DefaultUnitPath
	}
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		opts.Executable = exe
	}
	if opts.ConfigFile != "" && !filepath.IsAbs(opts.ConfigFile) {
		abs, err := filepath.Abs(opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		opts.ConfigFile = abs
	}

	unit, err := RenderServiceUnit(opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.UnitPath), 0o755); err != nil {
		return fmt.Errorf("create unit directory: %w", err)
	}
	return os.WriteFile(opts.UnitPath, []byte(unit), 0644)
}
