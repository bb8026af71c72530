package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/e7canasta/latent-explorer/internal/config"
	"github.com/e7canasta/latent-explorer/internal/control"
	"github.com/e7canasta/latent-explorer/internal/emitter"
	"github.com/e7canasta/latent-explorer/internal/imageservice"
	"github.com/e7canasta/latent-explorer/internal/scene3d"
	"github.com/e7canasta/latent-explorer/internal/session"
	"github.com/e7canasta/latent-explorer/internal/transport"
	"github.com/e7canasta/latent-explorer/modules/renderpipeline"
)

const statsInterval = 10 * time.Second

// Explorer is the main service orchestrator
type Explorer struct {
	cfg *config.Config

	// Core components
	gate           *Gate
	images         imageservice.Service
	arena          *scene3d.Arena
	registry       *session.Registry
	ws             *transport.Handler
	emitter        *emitter.MQTTEmitter // nil when MQTT is disabled
	controlHandler *control.Handler
	server         *http.Server

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
	addr      net.Addr
	cancelCtx context.CancelFunc // For MQTT shutdown command
}

// NewExplorer loads the configuration file and builds the service
func NewExplorer(configPath string) (*Explorer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"instance_id", cfg.InstanceID,
		"image_service", cfg.ImageService.Kind,
		"mqtt_enabled", cfg.MQTTEnabled(),
	)

	return New(cfg)
}

// New builds the service from a validated configuration
func New(cfg *config.Config) (*Explorer, error) {
	images, err := imageservice.New(cfg.ImageServiceOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create image service: %w", err)
	}

	gate := NewGate(cfg.InputEnabledOnStart())
	arena := scene3d.NewArena(cfg.SceneConfig(), nil)
	registry := session.NewRegistry(session.Config{
		Mapper:   cfg.MapperOptions(),
		Pipeline: renderpipeline.Config{Debounce: cfg.Debounce()},
		Fetcher:  imageservice.NewFetcher(images, cfg.Pipeline.ImageWidth, cfg.Pipeline.ImageHeight),
	}, arena, gate.Enabled())
	gate.OnChange(registry.SetEnabled)

	x := &Explorer{
		cfg:      cfg,
		gate:     gate,
		images:   images,
		arena:    arena,
		registry: registry,
		ws:       transport.NewHandler(registry, cfg.Server.AllowedOrigins),
		started:  time.Now(),
	}
	if cfg.MQTTEnabled() {
		x.emitter = emitter.NewMQTTEmitter(cfg)
	}
	return x, nil
}

// Gate returns the input enablement gate
func (x *Explorer) Gate() *Gate {
	return x.gate
}

// Registry returns the live session registry
func (x *Explorer) Registry() *session.Registry {
	return x.registry
}

// Addr returns the bound HTTP address once Run has started listening
func (x *Explorer) Addr() net.Addr {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.addr
}

// Run starts the service and blocks until ctx is cancelled
func (x *Explorer) Run(ctx context.Context) error {
	x.mu.Lock()
	if x.isRunning {
		x.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	x.isRunning = true
	x.started = time.Now()
	x.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	x.mu.Lock()
	x.cancelCtx = cancel
	x.mu.Unlock()

	slog.Info("latent explorer starting",
		"instance_id", x.cfg.InstanceID,
		"input_enabled", x.gate.Enabled(),
	)

	// MQTT before HTTP, so every session gets a forwarder
	if x.emitter != nil {
		if err := x.startMQTT(ctx); err != nil {
			return err
		}
	}

	if err := x.startServer(); err != nil {
		return err
	}

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.logStats(ctx, statsInterval)
	}()

	slog.Info("latent explorer running", "addr", x.Addr().String())

	<-ctx.Done()

	slog.Info("latent explorer run loop exiting")
	return nil
}

func (x *Explorer) startMQTT(ctx context.Context) error {
	if err := x.emitter.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect mqtt: %w", err)
	}

	x.registry.OnCreate(func(s *session.Session) {
		if err := x.emitter.Attach(s); err != nil {
			slog.Error("failed to attach mqtt forwarder", "session_id", s.ID(), "error", err)
		}
	})

	x.controlHandler = control.NewHandler(x.cfg, x.emitter.Client, control.CommandCallbacks{
		OnGetStatus:    x.getStatus,
		OnEnableInput:  x.enableInput,
		OnDisableInput: x.disableInput,
		OnResetView:    x.resetView,
		OnListSessions: x.listSessions,
		OnShutdown:     x.shutdownViaControl,
	})
	if err := x.controlHandler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start control plane: %w", err)
	}

	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.publishHealth(ctx, statsInterval)
	}()
	return nil
}

func (x *Explorer) startServer() error {
	ln, err := net.Listen("tcp", x.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", x.cfg.Server.Addr, err)
	}

	x.server = &http.Server{
		Handler:           x.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	x.mu.Lock()
	x.addr = ln.Addr()
	x.mu.Unlock()

	slog.Info("starting http server",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/metrics", "/ws", "/sessions", "/gate"},
	)

	go func() {
		if err := x.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown performs graceful shutdown of all components
func (x *Explorer) Shutdown(ctx context.Context) error {
	x.mu.Lock()
	if !x.isRunning {
		x.mu.Unlock()
		return nil
	}
	cancel := x.cancelCtx
	x.mu.Unlock()

	slog.Info("shutting down latent explorer")

	// 1. Stop accepting requests
	if x.server != nil {
		if err := x.server.Shutdown(ctx); err != nil {
			slog.Error("failed to stop http server", "error", err)
		}
	}

	// 2. Stop control plane
	if x.controlHandler != nil {
		if err := x.controlHandler.Stop(); err != nil {
			slog.Error("failed to stop control handler", "error", err)
		}
	}

	// 3. Close sessions: pipelines stop, buses close, WebSocket and MQTT
	// forwarders drain
	x.registry.Close()
	if cancel != nil {
		cancel()
	}

	// 4. Wait for goroutines to finish
	done := make(chan struct{})
	go func() {
		x.wg.Wait()
		if x.emitter != nil {
			x.emitter.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	// 5. Disconnect MQTT
	if x.emitter != nil {
		if err := x.emitter.Disconnect(); err != nil {
			slog.Error("failed to disconnect mqtt", "error", err)
		}
	}

	// 6. Release render surfaces
	if err := x.arena.Close(); err != nil {
		slog.Error("failed to dispose scenes", "error", err)
	}

	x.mu.Lock()
	uptime := time.Since(x.started)
	x.isRunning = false
	x.mu.Unlock()

	slog.Info("latent explorer shutdown complete", "uptime", uptime)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (x *Explorer) ShutdownTimeout() time.Duration {
	if timeout := x.cfg.ShutdownTimeout(); timeout > 0 {
		return timeout
	}
	return 5 * time.Second
}
