// Package server orchestrates the host: engine transport, dispatcher, plugin
// registrar, preference storage and the HTTP health endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/desktop-embedding/internal/config"
	"github.com/morezero/desktop-embedding/pkg/bridge"
	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/commsutil"
	"github.com/morezero/desktop-embedding/pkg/db"
	"github.com/morezero/desktop-embedding/pkg/dispatcher"
	"github.com/morezero/desktop-embedding/pkg/engine"
	"github.com/morezero/desktop-embedding/pkg/events"
	"github.com/morezero/desktop-embedding/pkg/plugin"
	"github.com/morezero/desktop-embedding/pkg/plugins/sharedprefs"
)

const logPrefix = "server:server"

// Server is the fde-host orchestrator.
type Server struct {
	cfg    *config.Config
	hostID string

	nc       *comms.Conn
	pool     *pgxpool.Pool
	bridge   *bridge.Bridge
	loopback *engine.Loopback

	dispatcher *dispatcher.Dispatcher
	registrar  *plugin.Registrar
	httpServer *http.Server

	inputBlocked atomic.Int32
}

// Run starts the host, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting fde-host (transport=%s)", logPrefix, cfg.Transport))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		s.Shutdown(context.Background())
		return err
	}

	slog.Info(fmt.Sprintf("%s - fde-host %s is ready", logPrefix, s.hostID))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	s.Shutdown(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// SetupLogging installs the default slog text handler at level.
func SetupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// New connects the configured transport and storage and registers the
// built-in plugins. Nothing is received until Start.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, hostID: uuid.NewString()}

	methodCodec, err := codec.MethodCodecByName(cfg.MethodCodec)
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	// Step 1: engine transport
	var eng engine.Engine
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	switch cfg.Transport {
	case config.TransportLoopback:
		s.loopback = engine.NewLoopback()
		s.loopback.InputBlock = s.blockInput
		s.loopback.InputUnblock = s.unblockInput
		eng = s.loopback
	default:
		nc, err := commsutil.Connect(cfg.COMMSURL, fmt.Sprintf("%s-%s", cfg.COMMSName, s.hostID[:8]))
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
		}
		s.nc = nc
		s.bridge = bridge.New(nc, bridge.Options{
			SubjectPrefix: cfg.SubjectPrefix,
			InputBlock:    s.blockInput,
			InputUnblock:  s.unblockInput,
		})
		publisher = events.NewCommsPublisher(nc, cfg.SubjectPrefix)
		eng = s.bridge
	}

	// Step 2: dispatcher and registrar
	s.dispatcher = dispatcher.New(eng)
	if s.loopback != nil {
		s.loopback.Attach(s.dispatcher)
	} else {
		s.bridge.Attach(s.dispatcher)
	}
	s.registrar, err = plugin.NewRegistrar(s.dispatcher, plugin.Options{
		APIConstraint: cfg.PluginAPIConstraint,
		Events:        publisher,
		HostID:        s.hostID,
		DefaultCodec:  methodCodec,
	})
	if err != nil {
		s.closeConnections()
		return nil, err
	}

	// Step 3: preference storage
	store, err := s.openPreferenceStore(ctx)
	if err != nil {
		s.closeConnections()
		return nil, err
	}

	// Step 4: plugins
	if err := s.registrar.AddPlugin(sharedprefs.New(store, cfg.RequestTimeout)); err != nil {
		s.closeConnections()
		return nil, fmt.Errorf("%s - failed to register shared preferences: %w", logPrefix, err)
	}
	for _, ch := range cfg.InputBlockingChannels {
		if !s.dispatcher.HasHandler(ch) {
			slog.Warn(fmt.Sprintf("%s - input-blocking channel %s has no handler yet", logPrefix, ch))
		}
		s.dispatcher.EnableInputBlockingForChannel(ch)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/channels", s.handleChannels)
	s.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: mux}

	return s, nil
}

func (s *Server) openPreferenceStore(ctx context.Context) (sharedprefs.Store, error) {
	if s.cfg.PreferencesStore != config.StorePostgres {
		slog.Info(fmt.Sprintf("%s - Using in-memory preference store", logPrefix))
		return sharedprefs.NewMemoryStore(), nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if _, err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return sharedprefs.NewPostgresStore(db.NewPreferencesRepository(pool)), nil
}

// Start begins receiving engine messages and serving HTTP.
func (s *Server) Start(ctx context.Context) error {
	if s.bridge != nil {
		if err := s.bridge.Start(); err != nil {
			return fmt.Errorf("%s - failed to start bridge: %w", logPrefix, err)
		}
	}

	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
	return nil
}

// Shutdown stops the HTTP server and the bridge and closes connections.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.bridge != nil {
		if err := s.bridge.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - bridge close: %v", logPrefix, err))
		}
	}
	s.closeConnections()
}

func (s *Server) closeConnections() {
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.nc.Close()
		}
		s.nc = nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Loopback returns the in-process engine, or nil when the host uses COMMS.
func (s *Server) Loopback() *engine.Loopback {
	return s.loopback
}

// Registrar returns the plugin registrar, for adding plugins before Start.
func (s *Server) Registrar() *plugin.Registrar {
	return s.registrar
}

func (s *Server) blockInput() {
	n := s.inputBlocked.Add(1)
	slog.Debug(fmt.Sprintf("%s - input blocked (depth %d)", logPrefix, n))
}

func (s *Server) unblockInput() {
	n := s.inputBlocked.Add(-1)
	slog.Debug(fmt.Sprintf("%s - input unblocked (depth %d)", logPrefix, n))
}

// healthOutput is the /health response body.
type healthOutput struct {
	Status    string          `json:"status"`
	HostID    string          `json:"hostId"`
	Checks    map[string]bool `json:"checks"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) health(ctx context.Context) *healthOutput {
	h := &healthOutput{
		Status:    "healthy",
		HostID:    s.hostID,
		Checks:    map[string]bool{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.nc != nil {
		h.Checks["comms"] = s.nc.IsConnected()
	}
	if s.pool != nil {
		h.Checks["database"] = s.pool.Ping(ctx) == nil
	}
	for _, ok := range h.Checks {
		if !ok {
			h.Status = "unhealthy"
		}
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	w.Header().Set("Content-Type", "application/json")
	if h.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(h)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":       "ready",
		"inputBlocked": s.inputBlocked.Load() > 0,
	})
}

// channelInfo describes one registered channel.
type channelInfo struct {
	Channel       string `json:"channel"`
	InputBlocking bool   `json:"inputBlocking"`
}

// channelsOutput is the /channels response body.
type channelsOutput struct {
	Channels []channelInfo `json:"channels"`
	Plugins  []plugin.Info `json:"plugins"`
}

func (s *Server) channels() *channelsOutput {
	names := s.dispatcher.Channels()
	out := &channelsOutput{Channels: make([]channelInfo, 0, len(names)), Plugins: s.registrar.Plugins()}
	for _, name := range names {
		out.Channels = append(out.Channels, channelInfo{Channel: name, InputBlocking: s.dispatcher.IsInputBlocking(name)})
	}
	return out
}

func (s *Server) handleChannels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.channels())
}

// homePageTemplate is the HTML for the host status page.
const homePageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>fde-host</title>
  <style>
    body { background: #fff; color: #000; font-family: system-ui, sans-serif; margin: 0; padding: 2rem; line-height: 1.5; }
    h1, h2 { color: #0066cc; }
    .status-healthy { color: #0066cc; font-weight: bold; }
    .status-unhealthy { color: #cc0000; font-weight: bold; }
    table { border-collapse: collapse; width: 100%; max-width: 900px; }
    th, td { text-align: left; padding: 0.5rem 0.75rem; border: 1px solid #ccc; }
    th { background: #f0f4f8; color: #0066cc; }
  </style>
</head>
<body>
  <h1>fde-host {{.Health.HostID}}</h1>
  <p>Status: <span class="status-{{.Health.Status}}">{{.Health.Status}}</span></p>
  <h2>Channels</h2>
  {{if not .Channels.Channels}}
  <p>No channels registered.</p>
  {{else}}
  <table>
    <thead><tr><th>Channel</th><th>Input blocking</th></tr></thead>
    <tbody>
      {{range .Channels.Channels}}
      <tr><td>{{.Channel}}</td><td>{{.InputBlocking}}</td></tr>
      {{end}}
    </tbody>
  </table>
  {{end}}
</body>
</html>
`

// homeData is the data passed to the home page template.
type homeData struct {
	Health   *healthOutput
	Channels *channelsOutput
}

func (s *Server) handleHome() http.HandlerFunc {
	tmpl := template.Must(template.New("home").Parse(homePageTemplate))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		data := homeData{Health: s.health(ctx), Channels: s.channels()}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			slog.Error(fmt.Sprintf("%s - home template execute: %v", logPrefix, err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}
