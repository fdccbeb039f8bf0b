package boundary

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultAddr is the preferred listen address for the status/control
// HTTP surface. If the port is busy, Server.Start binds :0 instead.
const DefaultAddr = "127.0.0.1:7450"

// Server exposes the Engine's status over HTTP: "/" and "/api/status"
// return the same JSON snapshot, "/health" is a liveness probe.
// Grounded on the teacher's internal/status.Server.
type Server struct {
	engine *Engine
	log    *zap.Logger

	mux        *http.ServeMux
	httpServer *http.Server
	listenAddr string
}

type statusResponse struct {
	Version               string `json:"version"`
	GitCommit              string `json:"gitCommit"`
	Mode                   string `json:"mode"`
	OBSConnected           bool   `json:"obsConnected"`
	ConnectedClients       int    `json:"connectedClients"`
	UptimeSeconds          int64  `json:"uptimeSeconds"`
}

// NewServer builds a boundary HTTP server over engine.
func NewServer(engine *Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{engine: engine, log: log.Named("boundary.http"), mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.handleStatus)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Start binds DefaultAddr, falling back to an OS-assigned port if busy.
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", DefaultAddr)
	if err != nil {
		ln, err = net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			s.log.Warn("could not start status server", zap.Error(err))
			return
		}
	}
	s.listenAddr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Warn("status server error", zap.Error(err))
		}
	}()
	s.log.Info("status server listening", zap.String("addr", s.listenAddr))
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

// Addr returns the actual bound listen address.
func (s *Server) Addr() string {
	return s.listenAddr
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:          s.engine.GetAppVersion(),
		GitCommit:        s.engine.GetGitCommit(),
		Mode:             string(s.engine.GetAppMode()),
		OBSConnected:     s.engine.GetOBSStatus().Connected,
		ConnectedClients: s.engine.GetConnectedClientsCount(),
		UptimeSeconds:    int64(s.engine.Uptime().Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true}`))
}
