package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/wordbingo/internal/config"
	"github.com/cory-johannsen/wordbingo/internal/game/bingo"
	"github.com/cory-johannsen/wordbingo/internal/game/session"
	"github.com/cory-johannsen/wordbingo/internal/gameserver"
)

// disconnectTimeout bounds the coordinator call made when a connection ends.
const disconnectTimeout = 5 * time.Second

// Coordinator is the game side of the transport. *gameserver.Coordinator
// implements it.
type Coordinator interface {
	RegisterPlayer(ctx context.Context, id, name string, outbox *session.Outbox) error
	Disconnect(ctx context.Context, id string, outbox *session.Outbox) error
	SubmitCard(ctx context.Context, playerID string, data bingo.CardData) error
	RequestStart(ctx context.Context, playerID string) error
	Snapshot(ctx context.Context) (gameserver.Snapshot, error)
}

// Acceptor serves the WebSocket endpoint and the health check over HTTP.
type Acceptor struct {
	server config.ServerConfig
	wsCfg  config.WebSocketConfig
	coord  Coordinator
	logger *zap.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a WebSocket acceptor.
//
// Precondition: server and wsCfg must pass config validation; coord and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(server config.ServerConfig, wsCfg config.WebSocketConfig, coord Coordinator, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		server: server,
		wsCfg:  wsCfg,
		coord:  coord,
		logger: logger,
		quit:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsCfg.ReadBufferSize,
			WriteBufferSize: wsCfg.WriteBufferSize,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{clientID}", a.handleWebSocket)
	mux.HandleFunc("GET /ws", a.handleWebSocket)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	a.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a
}

// originChecker accepts requests without an Origin header, any origin when
// allowed contains "*", and otherwise only the listed origins.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// ListenAndServe starts the HTTP listener and serves until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.server.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.server.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

func (a *Acceptor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("clientID")
	if id == "" {
		id = uuid.NewString()
	}

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		_ = raw.Close()
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	a.serveConn(NewConn(id, raw, a.wsCfg, a.logger), r.RemoteAddr)
}

// serveConn runs one connection until it ends, then tells the coordinator.
func (a *Acceptor) serveConn(conn *Conn, remoteAddr string) {
	defer a.wg.Done()
	start := time.Now()

	a.logger.Info("client connected",
		zap.String("client_id", conn.ID()),
		zap.String("remote_addr", remoteAddr),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Close the socket when the acceptor stops
	go func() {
		select {
		case <-a.quit:
			conn.Close()
		case <-ctx.Done():
		}
	}()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		conn.writePump()
	}()

	err := conn.readLoop(ctx, a.coord)

	dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
	if derr := a.coord.Disconnect(dctx, conn.ID(), conn.Outbox()); derr != nil {
		a.logger.Debug("disconnect not delivered",
			zap.String("client_id", conn.ID()),
			zap.Error(derr),
		)
	}
	dcancel()
	conn.Outbox().Close()
	<-pumpDone

	if err != nil && !isExpectedClose(err) {
		a.logger.Debug("connection ended",
			zap.String("client_id", conn.ID()),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	a.logger.Info("connection ended cleanly",
		zap.String("client_id", conn.ID()),
		zap.Duration("duration", time.Since(start)),
	)
}

func (a *Acceptor) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, err := a.coord.Snapshot(r.Context())
	if err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		http.Error(w, "coordinator unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		a.logger.Debug("writing health response", zap.Error(err))
	}
}

// Stop gracefully stops the acceptor: it closes the listener, closes every
// open connection and waits for their handlers to finish or ctx to expire.
//
// Postcondition: All connection goroutines have exited unless an error is returned.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.quit)
	a.mu.Unlock()

	shutdownErr := a.httpServer.Shutdown(ctx)

	waited := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections: %w", ctx.Err())
	}

	a.logger.Info("websocket acceptor stopped")
	if shutdownErr != nil {
		return fmt.Errorf("shutting down http server: %w", shutdownErr)
	}
	return nil
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
