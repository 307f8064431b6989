package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"usersim/internal/api"
	"usersim/internal/config"
	"usersim/internal/engine"
	"usersim/internal/study"
	"usersim/internal/websocket"
)

// Application coordinates all system components.
// Component initialization follows strict dependency order:
// Store → Registry → Engine → API → WebSocket handler → HTTP.
type Application struct {
	config     *config.Config
	store      *study.Manager
	registry   *websocket.Registry
	engine     *engine.Engine
	apiServer  *api.Server
	wsHandler  *websocket.Handler
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewApplication wires an application instance together.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store := study.NewManager()
	registry := websocket.NewRegistry()
	eng := engine.New(store, registry, engine.NewClock(), engine.NewRand(), cfg.Engine)
	apiServer := api.NewServer(store, eng, registry)
	wsHandler := websocket.NewHandler(
		registry,
		cfg.WebSocket.SendBuffer,
		cfg.WebSocket.MaxFrameBytes,
		cfg.WebSocket.WriteTimeout,
	)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleUpgrade)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      store,
		registry:   registry,
		engine:     eng,
		apiServer:  apiServer,
		wsHandler:  wsHandler,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. The listener is bound synchronously so GetAddr
// reports the real port even when the configured port is 0.
func (app *Application) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = listener
	app.mu.Unlock()

	log.Printf("starting usersim on %s", listener.Addr())

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("usersim started")
		return nil
	case <-ctx.Done():
		_ = app.httpServer.Close()
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → engine runners.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down usersim")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.engine.Shutdown()

	log.Printf("usersim shutdown complete")
	return nil
}

// GetAddr returns the bound listen address.
func (app *Application) GetAddr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
