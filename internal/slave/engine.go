package slave

import (
	"os"

	"go.uber.org/zap"

	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/protocol"
)

// ConnectionStatusFunc is invoked whenever the upstream connection to
// the master transitions connected/disconnected, for the shell
// boundary's slave-connection-status event.
type ConnectionStatusFunc func(connected bool)

// Engine wires together the OBS client, Transport, ExpectedState,
// Applier, and DriftDetector into the slave role's half of the §6
// boundary commands (connect_to_master, get_slave_reconnection_status,
// request_resync_from_master, ...).
type Engine struct {
	log       *zap.Logger
	reg       *metrics.Registry
	perf      *metrics.PerfMetrics
	obsClient *obs.Client

	expected  *ExpectedState
	applier   *Applier
	drift     *DriftDetector
	transport *Transport
}

// NewEngine constructs a slave Engine over an already-connected OBS
// client. onAlert surfaces desync-alert events to the shell; onStatus
// surfaces slave-connection-status events.
func NewEngine(obsClient *obs.Client, reg *metrics.Registry, log *zap.Logger, onAlert AlertFunc, onStatus ConnectionStatusFunc) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	namedLog := log.Named("slave")

	e := &Engine{
		log:       namedLog,
		reg:       reg,
		perf:      metrics.NewPerfMetrics(),
		obsClient: obsClient,
		expected:  NewExpectedState(),
	}

	tempDir := os.TempDir()
	e.applier = NewApplier(obsClient, e.expected, tempDir, namedLog, onAlert)
	e.transport = NewTransport(reg, e.perf, namedLog, e.handleInbound, func(connected bool) {
		if onStatus != nil {
			onStatus(connected)
		}
		if connected {
			e.drift.Start()
		} else {
			e.drift.Stop()
		}
	})
	e.drift = NewDriftDetector(obsClient, e.expected, e.transport, namedLog, onAlert)

	return e
}

// ConnectToMaster starts (or restarts) the reconnect supervisor against
// host:port.
func (e *Engine) ConnectToMaster(host string, port int) {
	e.transport.ConnectToMaster(host, port)
}

// DisconnectFromMaster tears the connection down and halts reconnects.
func (e *Engine) DisconnectFromMaster() {
	e.drift.Stop()
	e.transport.DisconnectFromMaster()
}

// ReconnectionStatus returns the current backoff/attempt state for
// get_slave_reconnection_status().
func (e *Engine) ReconnectionStatus() model.ReconnectionStatus {
	return e.transport.Status()
}

// RequestResyncFromMaster asks the master for a fresh state_sync.
func (e *Engine) RequestResyncFromMaster(reason string) {
	e.transport.Send(protocol.KindStateSyncRequest, "", protocol.StateSyncRequestPayload{Reason: reason})
}

// PerformanceMetrics returns the rolling-window aggregate.
func (e *Engine) PerformanceMetrics() metrics.Aggregate {
	return e.perf.Aggregate()
}

// handleInbound processes a decoded envelope from the master. Apply
// drives ExpectedState and the local OBS client; heartbeats only need
// the transport's own idle-deadline reset, already applied by the time
// this runs.
func (e *Engine) handleInbound(env protocol.Envelope) {
	if env.Type == protocol.KindHeartbeat {
		return
	}
	e.applier.Apply(env)
}
