package master

import (
	"go.uber.org/zap"

	"github.com/obssync/engine/internal/metrics"
	"github.com/obssync/engine/internal/model"
	"github.com/obssync/engine/internal/obs"
	"github.com/obssync/engine/internal/protocol"
)

// Engine wires together the OBS client, Transport, Translator, and
// SnapshotEngine into the master role's half of the §6 boundary
// commands (start_master_server, resync_*, get_slave_statuses, ...).
type Engine struct {
	log       *zap.Logger
	reg       *metrics.Registry
	perf      *metrics.PerfMetrics
	obsClient *obs.Client

	transport  *Transport
	translator *Translator
	snapshot   *SnapshotEngine
}

// NewEngine constructs a master Engine over an already-connected OBS
// client. The caller still must call StartServer to begin listening.
func NewEngine(obsClient *obs.Client, reg *metrics.Registry, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		log:       log.Named("master"),
		reg:       reg,
		perf:      metrics.NewPerfMetrics(),
		obsClient: obsClient,
		snapshot:  NewSnapshotEngine(obsClient),
	}
	e.transport = NewTransport(e.log, reg, e.perf, e.handleInbound)
	e.translator = NewTranslator(obsClient, e.transport, e.log)
	return e
}

// StartServer binds the listen address, starts the translator, and
// begins accepting slave connections.
func (e *Engine) StartServer(addr string) error {
	if err := e.transport.Start(addr); err != nil {
		return err
	}
	e.translator.Start()
	return nil
}

// StopServer disconnects every slave and stops listening. Returns
// obssync.ErrNotRunning if the server was never started.
func (e *Engine) StopServer() error {
	return e.transport.Stop()
}

// Addr returns the bound listen address.
func (e *Engine) Addr() string {
	return e.transport.Addr()
}

// SetSyncTargets replaces the active propagation filter.
func (e *Engine) SetSyncTargets(set model.SyncTargetSet) {
	e.translator.SetSyncTargets(set)
}

// ConnectedClientsCount returns the number of live slave sessions.
func (e *Engine) ConnectedClientsCount() int {
	return len(e.transport.Sessions())
}

// ConnectedClientsInfo returns a snapshot of every connected slave.
func (e *Engine) ConnectedClientsInfo() []model.ClientInfo {
	sessions := e.transport.Sessions()
	out := make([]model.ClientInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Info())
	}
	return out
}

// SlaveStatuses returns the last reported sync status of every slave
// that has sent at least one slave_status_report.
func (e *Engine) SlaveStatuses() []model.SlaveStatus {
	sessions := e.transport.Sessions()
	out := make([]model.SlaveStatus, 0, len(sessions))
	for _, s := range sessions {
		if status := s.Status(); status != nil {
			out = append(out, model.SlaveStatus{ClientID: s.ClientID, SlaveStatusReport: *status})
		}
	}
	return out
}

// PerformanceMetrics returns the rolling-window aggregate.
func (e *Engine) PerformanceMetrics() metrics.Aggregate {
	return e.perf.Aggregate()
}

// ResyncAllSlaves broadcasts a fresh state_sync to every connected slave.
func (e *Engine) ResyncAllSlaves() error {
	payload, err := e.snapshot.Build()
	if err != nil {
		return err
	}
	e.transport.Broadcast(protocol.KindStateSync, "", payload, "")
	return nil
}

// ResyncSpecificSlave sends a fresh state_sync to one session without
// perturbing any other connected slave.
func (e *Engine) ResyncSpecificSlave(clientID string) error {
	payload, err := e.snapshot.Build()
	if err != nil {
		return err
	}
	return e.transport.SendTo(clientID, protocol.KindStateSync, "", payload, "")
}

// handleInbound processes a decoded envelope from a slave session.
// slave_status_report has already been recorded onto the Session by the
// transport's read loop by the time this runs; this handler covers the
// remaining inbound kinds.
func (e *Engine) handleInbound(clientID string, env protocol.Envelope) {
	switch env.Type {
	case protocol.KindStateSyncRequest:
		var req protocol.StateSyncRequestPayload
		_ = env.DecodePayload(&req)
		e.log.Info("slave requested resync", zap.String("clientId", clientID), zap.String("reason", req.Reason))
		if err := e.ResyncSpecificSlave(clientID); err != nil {
			e.log.Warn("resync for requesting slave failed", zap.String("clientId", clientID), zap.Error(err))
		}
	case protocol.KindHeartbeat, protocol.KindSlaveStatusReport:
		// Heartbeats only need the read-loop's touch(); status reports
		// are recorded directly by the transport before reaching here.
	default:
		e.log.Warn("unexpected inbound kind from slave", zap.String("clientId", clientID), zap.String("kind", string(env.Type)))
	}
}

// InitialSync sends a freshly built snapshot to one newly connected
// slave. Callers are expected to invoke this right after a session is
// observed in ConnectedClientsInfo for the first time.
func (e *Engine) InitialSync(clientID string) error {
	return e.ResyncSpecificSlave(clientID)
}
