package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.autocatch.listen"
	systemdUnit  = "autocatch.service"
)

func installDaemonCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install autocatch as a user daemon (launchd/systemd)",
		Long:  "Generates a service file that runs autocatch in the current directory, so its .env and autocatch.yaml are picked up.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "listen" && mode != "poll" {
				return fmt.Errorf("--mode must be listen or poll, got %q", mode)
			}
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			workDir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("cannot determine working directory: %w", err)
			}
			svc := service{
				Exec:    execPath,
				Args:    daemonArgs(mode, configPath, workDir),
				WorkDir: workDir,
			}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(svc)
			case "linux":
				return installSystemd(svc)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "listen", "subcommand the daemon runs: listen or poll")
	return cmd
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the autocatch user daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "darwin":
				return uninstallLaunchd()
			case "linux":
				return uninstallSystemd()
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	}
}

// service describes the process a daemon unit starts.
type service struct {
	Exec    string
	Args    []string
	WorkDir string
}

// daemonArgs returns the command line for the daemon. A relative config
// path is resolved against workDir.
func daemonArgs(mode, cfgPath, workDir string) []string {
	args := []string{mode}
	if cfgPath != "" {
		if !filepath.IsAbs(cfgPath) {
			cfgPath = filepath.Join(workDir, cfgPath)
		}
		args = append(args, "--config", cfgPath)
	}
	return args
}

func renderLaunchd(svc service, logPath, errLogPath string) string {
	var progArgs strings.Builder
	for _, a := range append([]string{svc.Exec}, svc.Args...) {
		fmt.Fprintf(&progArgs, "        <string>%s</string>\n", a)
	}
	r := strings.NewReplacer(
		"{{LABEL}}", launchdLabel,
		"{{ARGS}}", strings.TrimSuffix(progArgs.String(), "\n"),
		"{{WORKDIR}}", svc.WorkDir,
		"{{LOG}}", logPath,
		"{{ERR_LOG}}", errLogPath,
	)
	return r.Replace(launchdTemplate)
}

func renderSystemd(svc service) string {
	r := strings.NewReplacer(
		"{{EXEC}}", strings.Join(append([]string{svc.Exec}, svc.Args...), " "),
		"{{WORKDIR}}", svc.WorkDir,
	)
	return r.Replace(systemdTemplate)
}

func installLaunchd(svc service) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	plistDir := filepath.Join(home, "Library", "LaunchAgents")
	plistPath := filepath.Join(plistDir, launchdLabel+".plist")
	logDir := filepath.Join(home, "Library", "Logs", "autocatch")

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(plistDir, 0o755); err != nil {
		return err
	}
	plist := renderLaunchd(svc, filepath.Join(logDir, "autocatch.log"), filepath.Join(logDir, "autocatch-error.log"))
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", plistPath)
	return nil
}

func installSystemd(svc service) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	unitPath := filepath.Join(unitDir, systemdUnit)

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(renderSystemd(svc)), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start autocatch\n")
	fmt.Printf("To enable: systemctl --user enable autocatch\n")
	fmt.Printf("To stop:   systemctl --user stop autocatch\n")
	return nil
}

func uninstallSystemd() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	unitPath := filepath.Join(home, ".config", "systemd", "user", systemdUnit)
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", unitPath)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
{{ARGS}}
    </array>
    <key>WorkingDirectory</key>
    <string>{{WORKDIR}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=autocatch spawn responder
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
WorkingDirectory={{WORKDIR}}
ExecStart={{EXEC}}
Restart=on-failure
RestartSec=10

[Install]
WantedBy=default.target
`
