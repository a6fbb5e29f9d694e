// Package web serves the daemon's HTTP surface: rendered slide media for
// the publishing platform, the live event stream, and a health endpoint.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"recast/internal/events"
	"recast/internal/logging"
	"recast/internal/store"
)

// Server is the daemon's HTTP listener.
type Server struct {
	bind     string
	mediaDir string
	store    *store.Store
	hub      *events.Hub
	logger   *slog.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer constructs the HTTP server.
func NewServer(bind, mediaDir string, s *store.Store, hub *events.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	server := &Server{
		bind:     bind,
		mediaDir: mediaDir,
		store:    s,
		hub:      hub,
		logger:   logger.With(logging.String(logging.FieldComponent, "web")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	return server
}

// Routes builds the request router.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.handleEventStream).Methods(http.MethodGet)
	router.PathPrefix("/media/").Handler(
		http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir))))
	return router
}

// Start begins serving. It returns once the listener is bound; serve
// errors after that are logged. A stopped server can be started again.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", logging.Error(err))
		}
	}(s.httpServer)
	s.logger.Info("http server listening", logging.String("bind", s.bind))
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", logging.Error(err))
	}
	s.httpServer = nil
}

type healthResponse struct {
	Status string               `json:"status"`
	Stats  *store.PipelineStats `json:"stats,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{Status: "ok"}
	if s.store != nil {
		stats, err := s.store.Stats(r.Context())
		if err != nil {
			s.logger.Warn("health stats unavailable", logging.Error(err))
			response.Status = "degraded"
		} else {
			response.Stats = stats
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if response.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}

// handleEventStream upgrades to a websocket and forwards hub events until
// the client goes away. A slow client is disconnected rather than allowed
// to stall the hub.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	eventCh, cancel := s.hub.Subscribe()
	defer cancel()

	// Drain client frames so pings and close messages are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
