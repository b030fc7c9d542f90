package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"focusift/internal/api"
	"focusift/internal/catalog"
	"focusift/internal/collector"
	"focusift/internal/collector/x11"
	"focusift/internal/config"
	"focusift/internal/event"
	"focusift/internal/feedback"
	"focusift/internal/ipc"
	"focusift/internal/metrics"
	"focusift/internal/persist"
	"focusift/internal/session"
	"focusift/internal/storage"
	"focusift/internal/suggest"

	sqlitestore "focusift/internal/storage/sqlite"
)

const (
	commandTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type App struct {
	cfg    *config.Config
	logger *slog.Logger

	storage    storage.Storage
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	dispatcher *persist.Dispatcher
	registry   *session.Registry
	x11Col     collector.Collector
	httpServer *http.Server

	// --- Socket Handling ---
	socketPath string
	listener   *net.UnixListener

	// Communication channels
	eventChan      chan event.Event
	visibilityChan chan collector.Visibility

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:            cfg,
		logger:         logger,
		eventChan:      make(chan event.Event, 100),
		visibilityChan: make(chan collector.Visibility, 10),
		socketPath:     cfg.SocketPath,
		ctx:            ctx,
		cancel:         cancel,
	}
	if a.socketPath == "" {
		a.socketPath = ipc.SocketPath
	}

	// Initialize Storage
	a.storage = sqlitestore.NewSQLiteStore(cfg.DatabasePath, logger)
	if err := a.storage.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	fail := func(err error) (*App, error) {
		_ = a.storage.Close()
		cancel()
		return nil, err
	}

	// Technique catalog and suggestion engine
	var err error
	if cfg.CatalogPath != "" {
		a.catalog, err = catalog.Load(cfg.CatalogPath)
	} else {
		a.catalog, err = catalog.Default()
	}
	if err != nil {
		return fail(fmt.Errorf("failed to load technique catalog: %w", err))
	}
	policy, err := suggest.NewPolicy(cfg.Suggestion.Policy, suggest.Options{
		ShortMinutes:      cfg.Suggestion.ShortMinutes,
		LongMinutes:       cfg.Suggestion.LongMinutes,
		DistractThreshold: cfg.Suggestion.DistractThreshold,
		Seed:              cfg.Suggestion.Seed,
	})
	if err != nil {
		return fail(err)
	}
	engine := suggest.NewEngine(policy, a.catalog)

	a.metrics = metrics.NewMetrics()

	// Persistence of finished sessions
	var persister persist.Persister = persist.NewStorePersister(a.storage)
	if cfg.Persistence.Mode == "remote" {
		persister = persist.NewHTTPPersister(cfg.Persistence.Endpoint, cfg.Persistence.APIKey, cfg.Persistence.Timeout())
	}
	a.dispatcher = persist.NewDispatcher(persister,
		persist.WithTimeout(cfg.Persistence.Timeout()),
		persist.WithLogger(logger),
		persist.OnFailure(a.metrics.PersistFailed),
	)

	var backend feedback.Backend = a.storage
	if cfg.Feedback.Backend == "file" {
		backend = feedback.NewFileBackend(cfg.Feedback.Dir)
	}

	a.registry = session.NewRegistry(
		session.Config{
			MaxMinutes:        cfg.Timer.MaxMinutes,
			MaxUsers:          cfg.MaxUsers,
			Threshold:         cfg.Distraction.Threshold,
			TerminateOnHidden: cfg.Distraction.TerminateOnHidden,
		},
		session.Deps{
			Catalog: a.catalog,
			Engine:  engine,
			Summary: a.dispatcher.Dispatch,
			Logger:  logger,
		},
		backend,
		session.WithObserver(a.observe),
	)

	// Initialize X11 Collector
	if cfg.Visibility.Enabled {
		x11Col, err := x11.NewX11Collector(cfg.Visibility.FocusApps, logger)
		if err != nil {
			logger.Warn("failed to initialize X11 collector, focus tracking disabled", "error", err)
		} else {
			a.x11Col = x11Col
		}
	}

	if cfg.ListenAddr != "" {
		a.httpServer = &http.Server{
			Addr: cfg.ListenAddr,
			Handler: api.NewRouter(api.Deps{
				Registry: a.registry,
				Catalog:  a.catalog,
				Store:    a.storage,
				Metrics:  a.metrics,
				Identity: api.IdentityHeaders{
					User:   cfg.Identity.UserHeader,
					Name:   cfg.Identity.NameHeader,
					Avatar: cfg.Identity.AvatarHeader,
				},
				APIKey: cfg.APIKey,
				Logger: logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
			// request contexts end with the app so event streams let Shutdown finish
			BaseContext: func(net.Listener) context.Context { return a.ctx },
		}
		if cfg.APIKey == "" && !loopbackAddr(cfg.ListenAddr) {
			logger.Warn("HTTP API is reachable beyond loopback without api_key; identity headers can be spoofed",
				"addr", cfg.ListenAddr, "max_users", cfg.MaxUsers)
		}
	}

	return a, nil
}

// loopbackAddr reports whether addr only binds a loopback interface.
func loopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// observe runs on a controller goroutine and must not block it.
func (a *App) observe(e event.Event) {
	select {
	case a.eventChan <- e:
	default:
		a.logger.Warn("event channel full, dropping event", "type", e.Type, "user", e.UserID)
	}
}

// setupSocket checks for existing socket and creates the listener
func (a *App) setupSocket() error {
	// Check if socket file exists and try connecting
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			// Connection successful - another instance is likely running
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		a.logger.Info("stale socket file found, removing", "path", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	a.logger.Info("listening for commands", "socket", a.socketPath)
	return nil
}

// listenForCommands accepts connections and handles them
func (a *App) listenForCommands() {
	defer a.wg.Done()
	defer a.logger.Debug("socket command listener stopped")

	if a.listener == nil {
		a.logger.Error("socket listener not initialized")
		return
	}

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return // Expected error on shutdown
			default:
				if errors.Is(err, net.ErrClosed) {
					return
				}
				a.logger.Warn("failed to accept connection", "error", err)
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		a.wg.Add(1)
		go a.handleConnection(conn)
	}
}

// handleConnection reads command, processes it, and sends response
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()
	defer a.wg.Done()

	conn.SetReadDeadline(time.Now().Add(commandTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			a.logger.Warn("failed to decode command", "error", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(commandTimeout))

	a.logger.Debug("received command", "name", cmd.Name)

	response := a.processCommand(cmd)

	if err := encoder.Encode(response); err != nil {
		a.logger.Warn("failed to send response", "error", err)
	}
}

// processCommand routes the command to the local user's session controller.
func (a *App) processCommand(cmd ipc.Command) ipc.Response {
	if cmd.Name == ipc.CmdPing {
		return ipc.Response{Success: true, Message: "pong"}
	}
	if cmd.Name == ipc.CmdListTechniques {
		var args ipc.ListTechniquesArgs
		if err := cmd.DecodeArgs(&args); err != nil {
			return invalidArgs(cmd, err)
		}
		cat, lvl := catalog.Category(args.Category), catalog.Level(args.Level)
		if cat != "" && !cat.Valid() {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown category: %s", cat)}
		}
		if lvl != "" && !lvl.Valid() {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown level: %s", lvl)}
		}
		return withData("", a.catalog.Filter(cat, lvl))
	}
	if cmd.Name == ipc.CmdGetFocus {
		if a.x11Col == nil {
			return ipc.Response{Success: false, Message: "Focus tracking is disabled"}
		}
		v, err := a.x11Col.Current()
		if err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Failed to read focus: %v", err)}
		}
		return withData("", ipc.FocusData{App: v.Focus.AppName, Title: v.Focus.Title, Hidden: v.Hidden})
	}

	ctrl, err := a.registry.Get(a.cfg.LocalUser)
	if err != nil {
		return ipc.Response{Success: false, Message: "App is shutting down"}
	}
	ctx, cancel := context.WithTimeout(a.ctx, commandTimeout)
	defer cancel()

	switch cmd.Name {
	case ipc.CmdStartSession:
		var args ipc.StartSessionArgs
		if err := cmd.DecodeArgs(&args); err != nil {
			return invalidArgs(cmd, err)
		}
		st, err := ctrl.Start(ctx, args.Minutes)
		if err != nil {
			return ipc.Response{Success: false, Message: err.Error()}
		}
		return withData(fmt.Sprintf("Session started: %s", formatDuration(time.Duration(st.PlannedSeconds)*time.Second)), st)

	case ipc.CmdStopSession:
		st, err := ctrl.Stop(ctx)
		if err != nil {
			return ipc.Response{Success: false, Message: err.Error()}
		}
		return withData("Session stop requested", st)

	case ipc.CmdSetVisibility:
		var args ipc.SetVisibilityArgs
		if err := cmd.DecodeArgs(&args); err != nil {
			return invalidArgs(cmd, err)
		}
		ctrl.Signal(args.Hidden)
		state := "visible"
		if args.Hidden {
			state = "hidden"
		}
		return ipc.Response{Success: true, Message: "Visibility set to " + state}

	case ipc.CmdGetStatus:
		st, err := ctrl.Status(ctx)
		if err != nil {
			return ipc.Response{Success: false, Message: err.Error()}
		}
		return withData("", st)

	case ipc.CmdRecordFeedback:
		var args ipc.RecordFeedbackArgs
		if err := cmd.DecodeArgs(&args); err != nil {
			return invalidArgs(cmd, err)
		}
		entry, err := ctrl.Feedback(ctx, args.Technique, args.Liked)
		if err != nil {
			return ipc.Response{Success: false, Message: err.Error()}
		}
		return withData(fmt.Sprintf("Feedback recorded for %s", args.Technique),
			ipc.FeedbackData{Technique: args.Technique, Entry: entry})

	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

func invalidArgs(cmd ipc.Command, err error) ipc.Response {
	return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
}

func withData(msg string, v interface{}) ipc.Response {
	raw, err := json.Marshal(v)
	if err != nil {
		return ipc.Response{Success: false, Message: fmt.Sprintf("failed to encode response: %v", err)}
	}
	return ipc.Response{Success: true, Message: msg, Data: raw}
}

// Stop triggers a graceful shutdown of Run.
func (a *App) Stop() { a.cancel() }

func (a *App) Run() error {
	defer a.cleanup()

	a.logger.Info("starting Focusift daemon",
		"database", a.cfg.DatabasePath,
		"listen", a.cfg.ListenAddr,
		"local_user", a.cfg.LocalUser,
		"policy", a.cfg.Suggestion.Policy,
		"persistence", a.cfg.Persistence.Mode,
		"x11", a.x11Col != nil,
	)

	if err := a.setupSocket(); err != nil {
		a.shutdown()
		return err
	}

	a.handleSignals()

	a.wg.Add(1)
	go a.processEvents()

	if a.x11Col != nil {
		a.wg.Add(2)
		go func() {
			defer a.wg.Done()
			err := a.x11Col.Start(a.ctx, a.cfg.CollectionInterval(), a.visibilityChan)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("X11 collector error", "error", err)
			}
		}()
		go a.forwardVisibility()
	}

	if a.httpServer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.Info("HTTP API listening", "addr", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("HTTP server failed", "error", err)
				a.cancel()
			}
		}()
	}

	a.wg.Add(1)
	go a.listenForCommands()

	if _, err := a.storage.SaveEvent(a.ctx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStart}); err != nil {
		a.logger.Warn("failed to save app_start event", "error", err)
	}

	a.logger.Info("Focusift daemon running; send commands via focusift-cli or the HTTP API")
	<-a.ctx.Done()

	a.logger.Info("shutdown signal received, waiting for components")
	a.shutdown()
	a.logger.Info("Focusift daemon finished")
	return nil
}

// shutdown stops accepting work, ends running sessions and flushes their
// summaries. It is safe to call more than once.
func (a *App) shutdown() {
	a.stopOnce.Do(func() {
		a.cancel()

		if a.listener != nil {
			if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				a.logger.Warn("error closing socket listener", "error", err)
			}
		}
		if a.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.httpServer.Shutdown(ctx); err != nil {
				a.logger.Warn("error shutting down HTTP server", "error", err)
			}
			cancel()
		}

		// Controllers stop their sessions here; after Close no observer runs.
		a.registry.Close()
		close(a.eventChan)
		a.dispatcher.Wait()

		waitChan := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(waitChan)
		}()
		select {
		case <-waitChan:
			a.logger.Debug("all application goroutines finished")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("timeout waiting for application goroutines to stop")
		}
	})
}

// forwardVisibility turns focus changes into visibility signals for the
// local user.
func (a *App) forwardVisibility() {
	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			return
		case v := <-a.visibilityChan:
			a.logger.Info("focus changed",
				"app", v.Focus.AppName,
				"title", collector.Truncate(v.Focus.Title, 80),
				"hidden", v.Hidden)
			ctrl, err := a.registry.Get(a.cfg.LocalUser)
			if err != nil {
				return
			}
			ctrl.Signal(v.Hidden)
		}
	}
}

// processEvents records controller events in the activity log and metrics
// until the event channel is closed.
func (a *App) processEvents() {
	defer a.wg.Done()
	defer a.logger.Debug("event processor stopped")

	for e := range a.eventChan {
		a.metrics.Observe(e)

		if e.Type == event.EventTypeTick {
			continue
		}

		switch e.Type {
		case event.EventTypeSessionCompleted, event.EventTypeSessionStopped:
			a.logger.Info("session ended",
				"user", e.UserID,
				"reason", e.Reason,
				"elapsed", formatDuration(time.Duration(e.ElapsedSeconds)*time.Second),
				"interruptions", e.Interruptions)
		case event.EventTypeSuggestion:
			a.logger.Info("suggestion", "user", e.UserID, "bucket", e.Tag, "technique", e.Notes)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if _, err := a.storage.SaveEvent(ctx, e); err != nil {
			a.logger.Warn("error saving event", "type", e.Type, "tag", e.Tag, "error", err)
		}
		cancel()
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, initiating shutdown", "signal", sig.String())
			a.cancel()
		case <-a.ctx.Done():
		}
	}()
}

// cleanup needs to ensure socket removal
func (a *App) cleanup() {
	a.logger.Debug("running cleanup")

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	if _, err := a.storage.SaveEvent(saveCtx, event.Event{Timestamp: time.Now(), Type: event.EventTypeAppStop}); err != nil {
		a.logger.Warn("failed to save app_stop event", "error", err)
	}

	if a.x11Col != nil {
		if err := a.x11Col.Stop(); err != nil {
			a.logger.Warn("error stopping X11 collector", "error", err)
		}
	}

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("error closing storage", "error", err)
		}
	}

	// Listener is closed in shutdown(); the socket file may remain.
	if a.listener != nil {
		if _, err := os.Stat(a.socketPath); err == nil {
			if err := os.Remove(a.socketPath); err != nil {
				a.logger.Warn("failed to remove socket file", "path", a.socketPath, "error", err)
			}
		}
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
