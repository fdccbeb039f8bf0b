// Package boundary exposes the §6 shell-facing command surface over
// whichever role (master or slave) the process is currently running,
// plus the HTTP status endpoint. Grounded on the teacher's
// internal/status.Server and internal/agent.Agent's command dispatch.
package boundary

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/obssync/engine/internal/master"
	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/obssync"
	"github.com/obssync/engine/internal/settings"
	"github.com/obssync/engine/internal/slave"
)

// Version and GitCommit are set at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// StatusEventFunc is invoked for the two shell-facing events this
// system emits: slave-connection-status and desync-alert.
type StatusEventFunc func(event string, payload interface{})

// Engine is the single point of contact the shell boundary talks to.
// At most one of masterEngine/slaveEngine is active at a time, gated by
// the current Mode.
type Engine struct {
	log *zap.Logger
	reg *metrics.Registry

	settingsPath string

	mu        sync.RWMutex
	mode      model.Mode
	obsClient *obs.Client
	obsCfg    model.OBSConnectionConfig

	masterEngine *master.Engine
	slaveEngine  *slave.Engine

	onEvent StatusEventFunc
	started time.Time
}

// New constructs a boundary Engine. onEvent may be nil.
func New(reg *metrics.Registry, log *zap.Logger, settingsPath string, onEvent StatusEventFunc) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		log:          log.Named("boundary"),
		reg:          reg,
		settingsPath: settingsPath,
		mode:         model.ModeMaster,
		onEvent:      onEvent,
		started:      time.Now(),
	}
}

func (e *Engine) emit(event string, payload interface{}) {
	if e.onEvent != nil {
		e.onEvent(event, payload)
	}
}

// ConnectOBS dials the local OBS instance.
func (e *Engine) ConnectOBS(ctx context.Context, cfg model.OBSConnectionConfig) error {
	e.mu.Lock()
	if e.obsClient != nil {
		e.mu.Unlock()
		return fmt.Errorf("boundary: %w: obs already connected", obssync.ErrNotRunning)
	}
	client := obs.New(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), cfg.Password, e.log)
	e.mu.Unlock()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.obsClient = client
	e.obsCfg = cfg
	e.mu.Unlock()
	return nil
}

// DisconnectOBS closes the local OBS connection. A running role engine is
// not stopped; its later OBS requests fail with obssync.ErrNotRunning.
func (e *Engine) DisconnectOBS() error {
	e.mu.Lock()
	client := e.obsClient
	e.obsClient = nil
	e.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// GetOBSStatus reports the local OBS connection state.
func (e *Engine) GetOBSStatus() model.OBSConnectionStatus {
	e.mu.RLock()
	client := e.obsClient
	e.mu.RUnlock()
	if client == nil || !client.Connected() {
		return model.OBSConnectionStatus{Connected: false}
	}
	v := client.Version()
	return model.OBSConnectionStatus{Connected: true, OBSVersion: v.OBSVersion, WSVersion: v.OBSWebSocketVersion}
}

// GetOBSSources lists every input known to the local OBS instance.
func (e *Engine) GetOBSSources() ([]model.OBSSource, error) {
	e.mu.RLock()
	client := e.obsClient
	e.mu.RUnlock()
	if client == nil {
		return nil, fmt.Errorf("boundary: %w: obs not connected", obssync.ErrNotRunning)
	}
	return client.ListInputs()
}

// SetAppMode switches between master and slave role. Switching modes
// stops whichever role engine is currently active.
func (e *Engine) SetAppMode(mode model.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.masterEngine != nil {
		if err := e.masterEngine.StopServer(); err != nil {
			e.log.Warn("stop master server on mode switch", zap.Error(err))
		}
		e.masterEngine = nil
	}
	if e.slaveEngine != nil {
		e.slaveEngine.DisconnectFromMaster()
		e.slaveEngine = nil
	}
	e.mode = mode
	return nil
}

// GetAppMode returns the current role.
func (e *Engine) GetAppMode() model.Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetSyncTargets updates the master's propagation filter. A no-op in
// slave mode or before start_master_server.
func (e *Engine) SetSyncTargets(targets []model.TargetType) {
	e.mu.RLock()
	m := e.masterEngine
	e.mu.RUnlock()
	if m == nil {
		return
	}
	m.SetSyncTargets(model.NewSyncTargetSet(targets...))
}

// StartMasterServer begins listening for slave connections.
func (e *Engine) StartMasterServer(addr string) error {
	e.mu.Lock()
	client := e.obsClient
	if client == nil {
		e.mu.Unlock()
		return fmt.Errorf("boundary: %w: obs not connected", obssync.ErrNotRunning)
	}
	if e.masterEngine != nil {
		e.mu.Unlock()
		return fmt.Errorf("boundary: %w: master server already running", obssync.ErrNotRunning)
	}
	eng := master.NewEngine(client, e.reg, e.log)
	e.masterEngine = eng
	e.mode = model.ModeMaster
	e.mu.Unlock()

	return eng.StartServer(addr)
}

// StopMasterServer stops the master listener and disconnects every slave.
// Returns obssync.ErrNotRunning if no master server is running.
func (e *Engine) StopMasterServer() error {
	e.mu.Lock()
	eng := e.masterEngine
	e.masterEngine = nil
	e.mu.Unlock()
	if eng == nil {
		return fmt.Errorf("boundary: %w: master server not running", obssync.ErrNotRunning)
	}
	return eng.StopServer()
}

// ConnectToMaster starts the slave dial supervisor.
func (e *Engine) ConnectToMaster(host string, port int) error {
	e.mu.Lock()
	client := e.obsClient
	if client == nil {
		e.mu.Unlock()
		return fmt.Errorf("boundary: %w: obs not connected", obssync.ErrNotRunning)
	}
	if e.slaveEngine == nil {
		e.slaveEngine = slave.NewEngine(client, e.reg, e.log,
			func(alert model.DesyncAlert) { e.emit("desync-alert", alert) },
			func(connected bool) { e.emit("slave-connection-status", connected) },
		)
		e.mode = model.ModeSlave
	}
	eng := e.slaveEngine
	e.mu.Unlock()

	eng.ConnectToMaster(host, port)
	return nil
}

// DisconnectFromMaster tears down the slave's upstream connection.
func (e *Engine) DisconnectFromMaster() {
	e.mu.RLock()
	eng := e.slaveEngine
	e.mu.RUnlock()
	if eng != nil {
		eng.DisconnectFromMaster()
	}
}

// GetConnectedClientsCount returns the number of connected slaves
// (master mode only; 0 otherwise).
func (e *Engine) GetConnectedClientsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.masterEngine == nil {
		return 0
	}
	return e.masterEngine.ConnectedClientsCount()
}

// GetConnectedClientsInfo lists every connected slave.
func (e *Engine) GetConnectedClientsInfo() []model.ClientInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.masterEngine == nil {
		return nil
	}
	return e.masterEngine.ConnectedClientsInfo()
}

// GetSlaveStatuses returns the last reported sync status of every slave.
func (e *Engine) GetSlaveStatuses() []model.SlaveStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.masterEngine == nil {
		return nil
	}
	return e.masterEngine.SlaveStatuses()
}

// GetSlaveReconnectionStatus returns the slave role's reconnect state,
// or nil when this process isn't acting as a slave.
func (e *Engine) GetSlaveReconnectionStatus() *model.ReconnectionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.slaveEngine == nil {
		return nil
	}
	status := e.slaveEngine.ReconnectionStatus()
	return &status
}

// GetPerformanceMetrics returns the active role's perf aggregate.
func (e *Engine) GetPerformanceMetrics() model.PerfAggregate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var agg metrics.Aggregate
	switch {
	case e.masterEngine != nil:
		agg = e.masterEngine.PerformanceMetrics()
	case e.slaveEngine != nil:
		agg = e.slaveEngine.PerformanceMetrics()
	}
	return model.PerfAggregate{
		AverageLatencyMs: agg.AverageLatencyMs,
		MessagesPerSec:   agg.MessagesPerSec,
		TotalMessages:    agg.TotalMessages,
		TotalBytes:       agg.TotalBytes,
	}
}

// ResyncAllSlaves broadcasts a fresh snapshot to every connected slave.
func (e *Engine) ResyncAllSlaves() error {
	e.mu.RLock()
	m := e.masterEngine
	e.mu.RUnlock()
	if m == nil {
		return fmt.Errorf("boundary: %w: not running as master", obssync.ErrNotRunning)
	}
	return m.ResyncAllSlaves()
}

// ResyncSpecificSlave sends a fresh snapshot to one connected slave.
func (e *Engine) ResyncSpecificSlave(clientID string) error {
	e.mu.RLock()
	m := e.masterEngine
	e.mu.RUnlock()
	if m == nil {
		return fmt.Errorf("boundary: %w: not running as master", obssync.ErrNotRunning)
	}
	return m.ResyncSpecificSlave(clientID)
}

// RequestResyncFromMaster asks the master for a fresh snapshot.
func (e *Engine) RequestResyncFromMaster() error {
	e.mu.RLock()
	s := e.slaveEngine
	e.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("boundary: %w: not running as slave", obssync.ErrNotRunning)
	}
	s.RequestResyncFromMaster("operator requested resync")
	return nil
}

// LoadSettings reads persisted settings, defaulting on first run.
func (e *Engine) LoadSettings() (settings.Settings, error) {
	return settings.Load(e.settingsPath)
}

// SaveSettings persists settings to disk.
func (e *Engine) SaveSettings(s settings.Settings) error {
	return settings.Save(e.settingsPath, s)
}

// GetAppVersion returns the build version string.
func (e *Engine) GetAppVersion() string {
	return Version
}

// GetGitCommit returns the build's source commit hash.
func (e *Engine) GetGitCommit() string {
	return GitCommit
}

// Uptime returns how long this process has been running.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.started)
}
