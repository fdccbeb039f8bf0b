package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/obssync/engine/internal/boundary"
	"github.com/obssync/engine/internal/branding"
	"github.com/obssync/engine/internal/config"
	"github.com/obssync/engine/internal/logging"
	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/settings"
	"github.com/obssync/engine/internal/singleton"
)

// Version and GitCommit are set at build time via -ldflags and threaded
// into the boundary package so get_app_version()/get_git_commit() see
// the same values the banner prints.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	var (
		mode        string
		obsHost     string
		obsPort     int
		obsPass     string
		masterAddr  string
		slaveHost   string
		slavePort   int
		showVersion bool
	)

	flag.StringVar(&mode, "mode", "", "Role: master or slave (overrides settings file)")
	flag.StringVar(&obsHost, "obs-host", "", "Local OBS WebSocket host (overrides settings file)")
	flag.IntVar(&obsPort, "obs-port", 0, "Local OBS WebSocket port (overrides settings file)")
	flag.StringVar(&obsPass, "obs-pass", "", "Local OBS WebSocket password (overrides settings file)")
	flag.StringVar(&masterAddr, "listen", "", "Master listen address (overrides settings file)")
	flag.StringVar(&slaveHost, "master-host", "", "Master host to dial as a slave (overrides settings file)")
	flag.IntVar(&slavePort, "master-port", 0, "Master port to dial as a slave (overrides settings file)")
	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("obssync %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}

	branding.PrintBanner(Version, runtime.GOOS, runtime.GOARCH, os.Stderr)

	boundary.Version = Version
	boundary.GitCommit = GitCommit

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("obssync: config load failed: %v", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("obssync: logger init failed: %v", err)
	}
	defer logger.Sync()

	lockDir := cfg.Role.TempDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	lock, err := singleton.Acquire(lockDir)
	if err != nil {
		logger.Fatal("another instance is already running", zap.Error(err))
	}
	defer lock.Release()

	reg := metrics.NewRegistry()

	eng := boundary.New(reg, logger, cfg.Role.SettingsPath, func(event string, payload interface{}) {
		logger.Info("shell event", zap.String("event", event), zap.Any("payload", payload))
	})

	persisted, err := eng.LoadSettings()
	if err != nil {
		logger.Warn("settings load failed, using defaults", zap.Error(err))
		persisted = settings.Default()
	}
	applyOverrides(&persisted, mode, obsHost, obsPort, obsPass, masterAddr, slaveHost, slavePort)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	obsErr := eng.ConnectOBS(ctx, model.OBSConnectionConfig{
		Host:     persisted.OBSHost,
		Port:     persisted.OBSPort,
		Password: persisted.OBSPassword,
	})
	cancel()
	if obsErr != nil {
		logger.Warn("initial OBS connect failed; boundary commands will retry via connect_obs", zap.Error(obsErr))
	}

	if err := eng.SetAppMode(persisted.Mode); err != nil {
		logger.Warn("set_app_mode failed", zap.Error(err))
	}

	switch persisted.Mode {
	case model.ModeMaster:
		if err := eng.StartMasterServer(persisted.MasterAddr); err != nil {
			logger.Error("start_master_server failed", zap.Error(err))
		} else {
			logger.Info("master server listening", zap.String("addr", persisted.MasterAddr))
		}
	case model.ModeSlave:
		if err := eng.ConnectToMaster(persisted.SlaveHost, persisted.SlavePort); err != nil {
			logger.Error("connect_to_master failed", zap.Error(err))
		}
	}

	httpSrv := boundary.NewServer(eng, logger)
	httpSrv.Start()
	defer httpSrv.Stop()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics.ListenAddr, cfg.Metrics.Endpoint, reg, logger)
	}

	logger.Info("obssync started", zap.String("version", Version), zap.String("mode", string(persisted.Mode)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if err := eng.StopMasterServer(); err != nil {
		logger.Warn("stop master server", zap.Error(err))
	}
	eng.DisconnectFromMaster()
	eng.DisconnectOBS()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
}

// applyOverrides layers CLI flags over the loaded settings; a zero
// value means "not passed on the command line, keep the settings file's
// value" (matching the teacher's flag-then-config precedence).
func applyOverrides(s *settings.Settings, mode, obsHost string, obsPort int, obsPass, masterAddr, slaveHost string, slavePort int) {
	if mode != "" {
		s.Mode = model.Mode(mode)
	}
	if obsHost != "" {
		s.OBSHost = obsHost
	}
	if obsPort != 0 {
		s.OBSPort = obsPort
	}
	if obsPass != "" {
		s.OBSPassword = obsPass
	}
	if masterAddr != "" {
		s.MasterAddr = masterAddr
	}
	if slaveHost != "" {
		s.SlaveHost = slaveHost
	}
	if slavePort != 0 {
		s.SlavePort = slavePort
	}
}

func startMetricsServer(addr, endpoint string, reg *metrics.Registry, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(endpoint, reg.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server listening", zap.String("addr", addr), zap.String("endpoint", endpoint))
	return srv
}
