// SPDX-License-Identifier: MIT

// Command midimon observes a live MIDI input device, hot-reloading a
// user Lua script that reacts to incoming MIDI messages.
//
// Usage:
//
//	midimon [options]
//
// Options:
//
//	--log=PATH       Path to the log file (default ~/.aud/log/aud.log)
//	--config=PATH    Path to an engine tuning file (default /etc/aud/config.yaml)
//	--fps=N          Application tick rate in Hz, >= 1.0 (default: from --config, else 30)
//	--script=PATH    Script file, or a directory to pick one from
//	--address=HOST   Remote capture host (required: no local MIDI backend
//	                 is wired on this platform, see internal/capture's
//	                 midiBackend doc comment)
//	--ports=LIST     Comma-separated candidate ports for --address
//	--health=ADDR    Optional health/metrics listen address (e.g. :9401)
//	--update         Check GitHub for a newer release and install it, then exit
//	--save-config    Write the effective engine config to --config, backing
//	                 up any existing file first, then exit
//	--restore-config=PATH  Restore --config from a backup file, then exit
//
// Engine tuning knobs not exposed as flags (channel capacities, script CPU
// soft limit, watcher debounce) load from --config and AUD_* environment
// variables; see internal/config.LoadEngineConfig. --config is migrated
// in place on load if it uses deprecated key names.
//
// Exit codes: 0 normal, 1 startup/IO failure, 2 invalid arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tomtom215/aud/internal/app"
	"github.com/tomtom215/aud/internal/capture"
	"github.com/tomtom215/aud/internal/config"
	"github.com/tomtom215/aud/internal/health"
	"github.com/tomtom215/aud/internal/lock"
	"github.com/tomtom215/aud/internal/paths"
	"github.com/tomtom215/aud/internal/pick"
	"github.com/tomtom215/aud/internal/stream"
	"github.com/tomtom215/aud/internal/supervisor"
	"github.com/tomtom215/aud/internal/updater"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("midimon", flag.ContinueOnError)
	logPath := fs.String("log", "", "Path to the log file (default ~/.aud/log/aud.log)")
	configPath := fs.String("config", config.EngineConfigFilePath, "Path to an engine tuning file")
	fps := fs.Float64("fps", 0, "Application tick rate in Hz, >= 1.0 (default: from --config, else 30)")
	scriptPath := fs.String("script", "", "Script file, or a directory to pick one from")
	address := fs.String("address", "", "Remote capture host")
	ports := fs.String("ports", "9100,9101,9102", "Comma-separated candidate ports for --address")
	healthAddr := fs.String("health", "", "Optional health/metrics listen address (e.g. :9401)")
	update := fs.Bool("update", false, "Check GitHub for a newer release and install it, then exit")
	saveConfig := fs.Bool("save-config", false, "Write the effective engine config to --config, backing up any existing file, then exit")
	restoreConfig := fs.String("restore-config", "", "Restore --config from a backup file, then exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *update {
		return runSelfUpdate("midimon")
	}
	if *restoreConfig != "" {
		return runRestoreConfig("midimon", *restoreConfig, *configPath)
	}

	engineCfgPath := *configPath
	var engineCfg config.EngineConfig
	var err error
	if _, statErr := os.Stat(engineCfgPath); statErr == nil {
		engineCfg, err = config.MigrateEngineConfig(engineCfgPath)
	} else {
		engineCfg, err = config.LoadEngineConfig("")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: loading engine config: %v\n", err)
		return 1
	}

	if *saveConfig {
		return runSaveConfig("midimon", engineCfg, *configPath)
	}
	if *scriptPath == "" {
		fmt.Fprintln(os.Stderr, "midimon: --script is required")
		return 2
	}
	if *address == "" {
		fmt.Fprintln(os.Stderr, "midimon: --address is required (no local MIDI backend on this platform)")
		return 2
	}

	explicitFPS := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "fps" {
			explicitFPS = true
		}
	})
	if !explicitFPS {
		*fps = engineCfg.FPS
	}
	if *fps < 1.0 {
		fmt.Fprintln(os.Stderr, "midimon: --fps must be >= 1.0")
		return 2
	}

	portList, err := parsePorts(*ports)
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: %v\n", err)
		return 2
	}

	layout, err := paths.Bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: %v\n", err)
		return 1
	}

	instanceLock, err := lock.NewFileLock(layout.LockFile("midimon-" + sanitizeLockName(*address)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: %v\n", err)
		return 1
	}
	if err := instanceLock.Acquire(5 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "midimon: another instance is already running against this device: %v\n", err)
		return 1
	}
	defer instanceLock.Release()

	logFile := *logPath
	if logFile == "" {
		logFile = layout.LogFile()
	}
	writer, err := stream.NewRotatingWriter(logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: opening log file: %v\n", err)
		return 1
	}
	defer writer.Close()
	logger := slog.New(slog.NewTextHandler(writer, nil))

	scriptFile, err := pick.ScriptFile(*scriptPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "midimon: %v\n", err)
		return 1
	}

	source := capture.NewRemoteSource(*address, portList)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	core := app.New(ctx, source, engineCfg.AppConfig(), logger)
	if err := core.Rescan(ctx); err != nil {
		logger.Warn("initial device scan failed", "err", err)
	}
	if err := core.LoadScriptSync(scriptFile, 2*time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "midimon: loading script: %v\n", err)
		return 1
	}

	tick := &coreTickService{core: core, cancel: cancel, fps: *fps, logger: logger}
	sup := supervisor.New("midimon", supervisor.Config{Logger: logger})
	sup.Add(tick)

	if *healthAddr != "" {
		provider := &coreHealthProvider{core: core, name: "midimon", start: time.Now()}
		handler := health.NewHandler(provider)
		sup.Add(&healthService{addr: *healthAddr, handler: handler})
	}

	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.Error("tick service exited unexpectedly", "err", err)
	}

	if err := core.Shutdown(); err != nil {
		logger.Warn("shutdown did not complete cleanly", "err", err)
	}
	if tick.panicked.Load() {
		return 1
	}
	return 0
}

// coreTickService drives Core.Tick at a fixed rate under the supervisor.
// The script engine runs on its own goroutine, not under this service;
// once the Core reports that the engine panicked, Serve records it and
// cancels the run so the process exits with code 1.
type coreTickService struct {
	core     *app.Core
	cancel   context.CancelFunc
	fps      float64
	logger   *slog.Logger
	panicked atomic.Bool
}

func (t *coreTickService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / t.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.core.Tick(ctx)
			if t.core.EnginePanicked() {
				t.logger.Error("script engine panicked, stopping")
				t.panicked.Store(true)
				t.cancel()
				return nil
			}
		}
	}
}

// coreHealthProvider adapts a Core's lifecycle state into health.ServiceInfo,
// reporting unhealthy once the script engine has panicked.
type coreHealthProvider struct {
	core  *app.Core
	name  string
	start time.Time
}

func (p *coreHealthProvider) Services() []health.ServiceInfo {
	state := p.core.StreamState()
	panicked := p.core.EnginePanicked()

	name := p.name
	if state == app.StreamActive {
		if dev := p.core.Connected(); dev.Name != "" {
			name = p.name + ":" + dev.Name
		}
	}

	info := health.ServiceInfo{
		Name:    name,
		State:   state.String(),
		Uptime:  time.Since(p.start),
		Healthy: !panicked,
	}
	if panicked {
		info.Error = "script engine panicked"
		info.Failures = 1
	}
	return []health.ServiceInfo{info}
}

// healthService runs the health/metrics HTTP endpoint under the supervisor.
type healthService struct {
	addr    string
	handler http.Handler
}

func (s *healthService) Serve(ctx context.Context) error {
	return health.ListenAndServeReady(ctx, s.addr, s.handler, nil)
}

// sanitizeLockName maps an arbitrary address string to something safe to
// use as a file name component.
func sanitizeLockName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
}

// runSelfUpdate checks GitHub for a newer release of binary and, if found,
// downloads and installs it in place. binary must match the asset naming
// convention the release pipeline publishes (e.g. "auscope", "midimon").
func runSelfUpdate(binary string) int {
	u := updater.New(
		updater.WithBinary(binary),
		updater.WithCurrentVersion(Version),
	)

	ctx := context.Background()
	fmt.Printf("%s: checking for updates...\n", binary)
	info, err := u.CheckForUpdates(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: checking for updates: %v\n", binary, err)
		return 1
	}

	fmt.Print(updater.FormatUpdateInfo(info))
	if !info.UpdateAvailable {
		return 0
	}

	binaryPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: resolving running binary path: %v\n", binary, err)
		return 1
	}

	if err := u.Update(ctx, info, binaryPath, nil); err != nil {
		if u.HasBackup(binaryPath) {
			if rbErr := u.Rollback(binaryPath); rbErr != nil {
				fmt.Fprintf(os.Stderr, "%s: update failed (%v) and rollback failed (%v)\n", binary, err, rbErr)
				return 1
			}
			fmt.Fprintf(os.Stderr, "%s: update failed, rolled back: %v\n", binary, err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "%s: update failed: %v\n", binary, err)
		return 1
	}

	fmt.Printf("%s: updated to %s, restart to use it\n", binary, info.LatestVersion)
	return 0
}

// runSaveConfig persists cfg (defaults layered under any existing file and
// AUD_* environment overrides) to path, backing up whatever was there first
// and pruning old backups beyond config.DefaultKeepBackups.
func runSaveConfig(binary string, cfg config.EngineConfig, path string) int {
	backupDir := config.GetBackupDir(path)
	backupPath, err := config.BackupBeforeSave(cfg, path, backupDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: saving config: %v\n", binary, err)
		return 1
	}
	if backupPath != "" {
		fmt.Printf("%s: backed up previous config to %s\n", binary, backupPath)
	}
	if deleted, err := config.CleanOldBackups(backupDir, filepath.Base(path), config.DefaultKeepBackups); err != nil {
		fmt.Fprintf(os.Stderr, "%s: pruning old backups: %v\n", binary, err)
	} else if deleted > 0 {
		fmt.Printf("%s: pruned %d old backup(s)\n", binary, deleted)
	}
	fmt.Printf("%s: wrote effective config to %s\n", binary, path)
	return 0
}

// runRestoreConfig restores path from backupPath, itself backing up whatever
// config currently lives at path before overwriting it.
func runRestoreConfig(binary, backupPath, path string) int {
	previous, err := config.RestoreBackup(backupPath, path, config.GetBackupDir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: restoring config: %v\n", binary, err)
		return 1
	}
	if previous != "" {
		fmt.Printf("%s: backed up previous config to %s\n", binary, previous)
	}
	fmt.Printf("%s: restored %s from %s\n", binary, path, backupPath)
	return 0
}

func parsePorts(csv string) ([]int, error) {
	parts := strings.Split(csv, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", p, err)
		}
		out = append(out, n)
	}
	return out, nil
}
