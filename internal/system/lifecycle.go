package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/KevinKickass/OpenUnitSync/internal/api/rest"
	"github.com/KevinKickass/OpenUnitSync/internal/api/websocket"
	"github.com/KevinKickass/OpenUnitSync/internal/auth"
	"github.com/KevinKickass/OpenUnitSync/internal/commands"
	"github.com/KevinKickass/OpenUnitSync/internal/config"
	"github.com/KevinKickass/OpenUnitSync/internal/discovery"
	"github.com/KevinKickass/OpenUnitSync/internal/interfaces"
	"github.com/KevinKickass/OpenUnitSync/internal/notify"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/engine"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/executor"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/resolver"
	"github.com/KevinKickass/OpenUnitSync/internal/provisioning/streaming"
	"github.com/KevinKickass/OpenUnitSync/internal/storage"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
	"github.com/KevinKickass/OpenUnitSync/internal/units"
)

// LifecycleManager wires discovery, the sync engine and the outer surfaces
// (REST, websocket, gRPC, MQTT) and owns their lifetime.
type LifecycleManager struct {
	config   *config.Config
	storage  *storage.PostgresClient // nil wenn database.enabled=false
	profiles *ProfileSource
	scanner  *discovery.Scanner
	registry *units.Registry
	engine   *engine.Engine
	streamer *streaming.ProgressStreamer
	runs     *RunRegistry
	auth     *auth.AuthService
	hub      *websocket.Hub
	mqtt     *notify.Publisher
	poller   *discovery.Poller
	logger   *zap.Logger

	restServer *rest.Server
	grpcServer *grpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	runsWG sync.WaitGroup

	stateMu      sync.RWMutex
	currentState SystemState

	scanMu sync.Mutex

	shutdownOnce sync.Once
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)

func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	loader, err := units.NewProfileLoader(cfg.Profiles.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}
	validator, err := units.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create profile validator: %w", err)
	}

	scanner := discovery.NewScanner(discovery.Options{
		Port:           cfg.Discovery.Port,
		Timeout:        cfg.Discovery.Timeout,
		ReadBuffer:     cfg.Discovery.ReceiveBuffer,
		Broadcasts:     cfg.Discovery.Broadcasts,
		LegacyFallback: cfg.Discovery.LegacyFallback,
	}, logger)

	// Sync Engine
	profiles := NewProfileSource(db, loader, validator)
	streamer := streaming.NewProgressStreamer()
	dialer := commands.NewDialer(cfg.Discovery.Port, cfg.Sync.RequestTimeout, logger)
	stepExecutor := executor.NewStepExecutor(executor.Config{
		Pacing:          cfg.Sync.Pacing,
		IOBatchMaxBytes: cfg.Sync.IOBatchMaxBytes,
	}, logger)

	var items resolver.ItemStore
	var users auth.UserStore
	if db != nil {
		items = db
		users = db
	}

	syncEngine := engine.NewEngine(dialer, stepExecutor, profiles, items, streamer, logger)
	if db != nil {
		syncEngine.SetReportStore(db)
	}

	authService := auth.NewAuthService(users, cfg.Auth, logger)
	hub := websocket.NewHub(logger, authService)
	syncEngine.AddObserver(hub)

	ctx, cancel := context.WithCancel(context.Background())

	return &LifecycleManager{
		config:       cfg,
		storage:      db,
		profiles:     profiles,
		scanner:      scanner,
		registry:     units.NewRegistry(logger),
		engine:       syncEngine,
		streamer:     streamer,
		runs:         NewRunRegistry(),
		auth:         authService,
		hub:          hub,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		currentState: StateInitializing,
	}, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenUnitSync")

	go lm.hub.Run(lm.ctx)
	go lm.hub.Forward(lm.ctx, lm.streamer)

	if lm.config.MQTT.Enabled {
		if err := lm.startMQTT(); err != nil {
			// Not fatal, sync works without a broker
			lm.logger.Warn("MQTT publisher disabled", zap.Error(err))
		}
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.hub, lm.auth)
	if err := lm.restServer.Start(); err != nil {
		lm.setError(err)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}

	if interval := lm.config.Discovery.RescanInterval; interval > 0 {
		lm.poller = discovery.NewPoller(func(ctx context.Context) int {
			return len(lm.Scan(ctx).Units)
		}, interval, lm.logger)
		lm.poller.Start(lm.ctx)
	}

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("database", lm.storage != nil),
		zap.Bool("mqtt", lm.mqtt != nil))

	return nil
}

func (lm *LifecycleManager) startMQTT() error {
	connectCtx, cancel := context.WithTimeout(lm.ctx, 10*time.Second)
	defer cancel()

	publisher, err := notify.Connect(connectCtx, lm.config.MQTT, lm.logger)
	if err != nil {
		return err
	}

	lm.mqtt = publisher
	lm.engine.AddObserver(publisher)
	go publisher.Run(lm.ctx, lm.streamer)
	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	streaming.NewProgressService(lm.streamer, lm.runs).Register(lm.grpcServer)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", streaming.ProgressServiceDesc.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Scan runs a discovery scan and replaces the unit registry. Concurrent
// scans are serialized because they share the discovery port.
func (lm *LifecycleManager) Scan(ctx context.Context) interfaces.ScanResult {
	lm.scanMu.Lock()
	found := lm.scanner.Scan(ctx)
	lm.registry.Replace(found)
	lm.scanMu.Unlock()

	result := lm.LastScan()
	lm.hub.Broadcast(websocket.NewScanCompletedMessage(len(result.Units), result.Conflicts))
	return result
}

func (lm *LifecycleManager) LastScan() interfaces.ScanResult {
	found := lm.registry.List()
	if found == nil {
		found = []types.NetworkUnit{}
	}
	return interfaces.ScanResult{
		Units:     found,
		Conflicts: units.CheckConflicts(found),
		ScannedAt: lm.registry.ScannedAt(),
	}
}

func (lm *LifecycleManager) GetProfile(ctx context.Context, id uuid.UUID) (*types.StoredUnitProfile, error) {
	return lm.profiles.GetUnitProfile(ctx, id)
}

func (lm *LifecycleManager) SaveProfile(ctx context.Context, profile *types.StoredUnitProfile) error {
	return lm.profiles.SaveUnitProfile(ctx, profile)
}

// StartSync validates and plans a run synchronously, then executes it in
// the background. Pre-flight failures are returned to the caller.
func (lm *LifecycleManager) StartSync(ctx context.Context, req interfaces.SyncRequest) (uuid.UUID, error) {
	if lm.State() != StateRunning {
		return uuid.Nil, fmt.Errorf("cannot start sync: system is %s", lm.State())
	}

	keys := make([]string, len(req.Targets))
	for i, t := range req.Targets {
		keys[i] = t.UnitKey
	}
	found, missing := lm.registry.Lookup(keys)
	if len(missing) > 0 {
		return uuid.Nil, types.NewValidationError("UNKNOWN_UNIT", "units not found in the last scan", missing...)
	}

	targets := make([]engine.Target, len(found))
	for i, unit := range found {
		targets[i] = engine.Target{Unit: unit, ProfileID: req.Targets[i].ProfileID}
	}

	run, err := lm.engine.Prepare(ctx, engine.Request{
		Targets:      targets,
		Categories:   req.Categories,
		WriteProfile: req.WriteProfile,
		Known:        lm.registry.List(),
	})
	if err != nil {
		return uuid.Nil, err
	}
	lm.runs.Add(run)

	lm.runsWG.Add(1)
	go func() {
		defer lm.runsWG.Done()
		// not tied to the request context, a run is never cut off midway
		if _, err := lm.engine.Execute(context.Background(), run); err != nil {
			lm.logger.Error("Synchronization failed to execute",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
			return
		}
		lm.applyIdentityChange(run)
	}()

	return run.ID, nil
}

// applyIdentityChange keeps the registry addressable after a profile write
// moved a unit to a new IP address or CAN id.
func (lm *LifecycleManager) applyIdentityChange(run *engine.Run) {
	from, to, changed := run.IdentityChange()
	if !changed {
		return
	}
	if !lm.registry.Rekey(from.Key(), to) {
		lm.logger.Warn("Changed unit no longer in registry, rescan to pick it up",
			zap.String("run_id", run.ID.String()),
			zap.String("unit", to.Key()))
	}
}

func (lm *LifecycleManager) RunStatus(runID uuid.UUID) (interfaces.RunStatus, bool) {
	run, ok := lm.runs.Get(runID)
	if !ok {
		return interfaces.RunStatus{}, false
	}

	labels := make([]string, 0)
	for _, u := range run.Units() {
		labels = append(labels, u.Label())
	}

	return interfaces.RunStatus{
		RunID:    run.ID,
		State:    run.State(),
		Progress: run.Progress(),
		Units:    labels,
		Pairs:    run.Pairs(),
	}, true
}

// RunReport returns the report of a finished run from memory or, for older
// runs, from the database.
func (lm *LifecycleManager) RunReport(ctx context.Context, runID uuid.UUID) (*types.SyncReport, error) {
	if run, ok := lm.runs.Get(runID); ok {
		if report := run.Report(); report != nil {
			return report, nil
		}
		return nil, fmt.Errorf("run %s is %s: %w", runID, run.State(), storage.ErrNotFound)
	}

	if lm.storage == nil {
		return nil, fmt.Errorf("run %s: %w", runID, storage.ErrNotFound)
	}
	return lm.storage.GetSyncReport(ctx, runID)
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:      lm.State().String(),
		UnitCount:  len(lm.registry.List()),
		LastScan:   lm.registry.ScannedAt(),
		ActiveRuns: lm.runs.Active(),
		Database:   lm.storage != nil,
		MQTT:       lm.mqtt != nil,
	}
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		if err := lm.setState(StateStopping); err != nil {
			lm.logger.Warn("Unexpected state on shutdown", zap.Error(err))
		}

		if lm.poller != nil {
			lm.poller.Stop()
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.cancel()
		if lm.mqtt != nil {
			lm.mqtt.Close()
		}

		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	// 1. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 2. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	// 3. Wait for running syncs
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.runsWG.Wait()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		return err
	}
	lm.currentState = state
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.logger.Error("System error", zap.Error(err))
	lm.currentState = StateError
}
