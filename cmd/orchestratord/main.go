// Command orchestratord is the Non-RT process (§4.6-§4.11): it owns the
// DataStore, the priority event bus, the action/sequence/task execution
// stack, bag recording, and the metrics HTTP endpoint. It consumes
// keep-alive traffic sent by rtcycled over the shared IPC channel.
//
// As in rtcycled, the real cross-process transport between the RT and
// Non-RT binaries (a POSIX shared-memory segment named by MXRC_SHM_NAME)
// is a deployment-time concern outside this module: internal/ipc.IpcQueue
// here models the Non-RT side of that channel in-process only, for
// development and single-binary testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/action"
	"github.com/mxrc-robotics/mxrc/internal/bag"
	"github.com/mxrc-robotics/mxrc/internal/config"
	"github.com/mxrc-robotics/mxrc/internal/datastore"
	"github.com/mxrc-robotics/mxrc/internal/eventbus"
	"github.com/mxrc-robotics/mxrc/internal/ipc"
	"github.com/mxrc-robotics/mxrc/internal/sequence"
	"github.com/mxrc-robotics/mxrc/internal/task"
	"github.com/mxrc-robotics/mxrc/internal/watchdog"
	"github.com/mxrc-robotics/mxrc/pkg/metrics"
	"github.com/mxrc-robotics/mxrc/pkg/mxerrors"
	"github.com/mxrc-robotics/mxrc/pkg/mxlog"
	"github.com/mxrc-robotics/mxrc/pkg/mxruntime"
	"github.com/mxrc-robotics/mxrc/pkg/resilience"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = mxruntime.ProcessRole() // fails fast if MXRC_ROLE isn't set to "nonrt"

	cfg, err := config.Load()
	if err != nil {
		return mxerrors.InitFatal("load config", err)
	}

	logger := mxlog.NewFromEnv("mxrc-orchestratord")
	mxlog.InitDefault("mxrc-orchestratord", cfg.Logging.Level, cfg.Logging.Format)

	schema, err := config.LoadSchema(cfg.SchemaFile)
	if err != nil {
		return err
	}

	registry := metrics.NewRegistry()
	nonRTMetrics := metrics.NewNonRTMetrics(registry)
	dsMetrics := metrics.NewDataStoreMetrics(registry)

	var bagWriter *bag.Writer
	if cfg.NonRT.BagEnabled {
		bagWriter, err = bag.NewWriter(cfg.NonRT.BagDirectory, bag.DefaultRotationPolicy(), 4096, logger)
		if err != nil {
			return mxerrors.InitFatal("open bag writer", err)
		}
	}

	bagBreaker := resilience.New(resilience.Config{
		Name:        "bag_append",
		MaxFailures: 5,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithComponent("bag").Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	store := datastore.New(256, datastore.WithWriteHook(func(key string, value any, version uint64, timestampNS int64) {
		if bagWriter == nil {
			return
		}
		_ = bagBreaker.Execute(context.Background(), func() error {
			rec := bag.Record{TimestampNS: timestampNS, Topic: key, Value: value}
			if !bagWriter.Append(rec) {
				return fmt.Errorf("bag writer queue full, record for %q dropped", key)
			}
			return nil
		})
	}), datastore.WithAccessDeniedHook(func(key, moduleID string) {
		logger.LogAccessDenied(context.Background(), key, moduleID)
	}))

	for _, k := range schema.Keys {
		store.Register(k.Name, k.Type, k.HotKey)
		for _, reader := range k.Readers {
			store.AccessControl().SetPolicy(k.Name, reader, true)
		}
		for _, writer := range k.Writers {
			store.AccessControl().SetPolicy(k.Name, writer, true)
		}
	}

	busCfg := eventbus.DefaultConfig()
	busCfg.CriticalCapacity = cfg.NonRT.EventBusCriticalCapacity
	busCfg.NormalCapacity = cfg.NonRT.EventBusNormalCapacity
	busCfg.DebugCapacity = cfg.NonRT.EventBusDebugCapacity
	if cfg.NonRT.BackpressurePolicy == "drop_oldest" {
		busCfg.Policy = eventbus.DropOldest
	}
	bus, err := eventbus.New(busCfg)
	if err != nil {
		return mxerrors.InitFatal("construct event bus", err)
	}

	actionRegistry := action.NewRegistry(logger)
	actionExecutor := action.NewExecutor(logger)
	sequenceRegistry := sequence.NewRegistry()
	sequenceEngine := sequence.NewEngine(actionRegistry, actionExecutor, sequence.NewGvalConditionProvider(), logger)
	taskExecutor := task.NewExecutor(actionRegistry, actionExecutor, sequenceRegistry, sequenceEngine, logger)
	taskMonitor := task.NewMonitor()
	periodicScheduler := task.NewPeriodicScheduler(logger)
	triggerManager := task.NewTriggerManager(logger)

	queue := ipc.NewIpcQueue(cfg.RT.IPCRingCapacity)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	drainDone := make(chan struct{})
	go drainKeepAlives(ctx, queue, logger, nonRTMetrics, drainDone)

	metricsSyncDone := make(chan struct{})
	go syncDataStoreMetrics(ctx, store, dsMetrics, metricsSyncDone)

	metricsServer := metrics.NewServer(cfg.NonRT.MetricsAddr, registry, logger)
	metricsServer.Start()

	logger.WithComponent("orchestratord").Infof("running with %d registered keys, %d hot", len(schema.Keys), store.HotKeyCount())
	// taskExecutor, taskMonitor, triggerManager, and bus are constructed and
	// ready but have nothing to drive them yet: concrete task/action/event
	// definitions are supplied per-deployment and are out of this module's
	// scope (see Non-goals). A real deployment wires a definition loader
	// here that calls actionRegistry.RegisterDefinition /
	// sequenceRegistry.Register / triggerManager.RegisterTrigger before
	// this point.
	_, _, _, _ = taskExecutor, taskMonitor, triggerManager, bus

	<-ctx.Done()

	// Reverse creation order: metrics server, background loops, schedulers,
	// bag writer, event bus (stateless, nothing to join).
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithComponent("metrics").WithError(err).Warn("metrics server shutdown failed")
	}
	<-metricsSyncDone
	<-drainDone
	periodicScheduler.Shutdown()
	if bagWriter != nil {
		if err := bagWriter.Close(); err != nil {
			logger.WithComponent("bag").WithError(err).Warn("bag writer close failed")
		}
	}

	return nil
}

// drainKeepAlives polls the shared IPC channel for rtcycled heartbeats.
// A real deployment journals these to the process supervisor; here they
// are logged and counted.
func drainKeepAlives(ctx context.Context, queue *ipc.IpcQueue, logger *mxlog.Logger, m *metrics.NonRTMetrics, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				msg, ok := queue.Pop()
				if !ok {
					break
				}
				if msg.Tag == ipc.MessageHeartbeat {
					m.KeepAlivesSent.Inc()
				}
			}
		}
	}
}

// syncDataStoreMetrics periodically ratchets the Prometheus-facing
// DataStoreMetrics forward from the store's internal lock-free counters.
func syncDataStoreMetrics(ctx context.Context, store *datastore.Store, m *metrics.DataStoreMetrics, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := store.Metrics().Snapshot()
			m.Sync(snap.GetCalls, snap.SetCalls, snap.PollCalls, snap.DeleteCalls, snap.MemoryUsageBytes)
		}
	}
}
