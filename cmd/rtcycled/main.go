// Command rtcycled is the RT process (§4.5): it runs the fixed-period
// fieldbus exchange loop, emits cycle metrics, and sends liveness
// keep-alives to whatever process supervisor is watching it.
//
// rtcycled and orchestratord are meant to be separately compiled binaries
// cooperating over a real POSIX shared-memory segment (the
// MXRC_SHM_NAME config value names it). Attaching to that segment is a
// host/OS-integration concern outside this module's boundary — it belongs
// to whatever deployment harness maps the two processes onto a real-time
// kernel. internal/ipc.IpcQueue below is the in-process stand-in used for
// the RT cycle loop's own keep-alive channel; it is not itself the
// cross-process transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mxrc-robotics/mxrc/internal/config"
	"github.com/mxrc-robotics/mxrc/internal/fieldbus"
	"github.com/mxrc-robotics/mxrc/internal/ipc"
	"github.com/mxrc-robotics/mxrc/internal/rtcycle"
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
	_ = mxruntime.ProcessRole() // fails fast if MXRC_ROLE isn't set to "rt"

	cfg, err := config.Load()
	if err != nil {
		return mxerrors.InitFatal("load config", err)
	}

	logger := mxlog.NewFromEnv("mxrc-rtcycled")
	mxlog.InitDefault("mxrc-rtcycled", cfg.Logging.Level, cfg.Logging.Format)

	period := time.Duration(cfg.RT.CyclePeriodUS) * time.Microsecond

	factory := fieldbus.NewFactory(logger)
	if err := factory.Register("mock", fieldbus.NewMockConstructor()); err != nil {
		return mxerrors.InitFatal("register mock fieldbus driver", err)
	}

	driverName := cfg.RT.FieldbusDriver
	if driverName == "" {
		driverName = "mock"
	}
	sensorWidth, actuatorWidth := 16, 16
	driver, err := factory.Create(driverName, map[string]string{
		"input_width":  fmt.Sprint(sensorWidth),
		"output_width": fmt.Sprint(actuatorWidth),
	})
	if err != nil {
		return mxerrors.InitFatal("create fieldbus driver", err)
	}

	bus := fieldbus.New(driver, period)
	if err := bus.Init(); err != nil {
		return mxerrors.Wrap(mxerrors.CodeCommFailure, "fieldbus init", err)
	}
	if err := bus.Start(); err != nil {
		return mxerrors.Wrap(mxerrors.CodeCommFailure, "fieldbus start", err)
	}
	logger.LogFieldbusTransition(context.Background(), bus.Protocol(), fieldbus.StateInitialized.String(), fieldbus.StateRunning.String(), nil)

	ioBreaker := resilience.New(resilience.Config{
		Name:        "fieldbus_io",
		MaxFailures: 5,
		Timeout:     10 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.WithComponent("rtcycle").Warnf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	exchanger := &breakerExchanger{driver: driver, breaker: ioBreaker}

	registry := metrics.NewRegistry()
	rtMetrics := metrics.NewRTMetrics(registry)
	metricsServer := metrics.NewServer(rtMetricsAddr(), registry, logger)
	metricsServer.Start()

	queue := ipc.NewIpcQueue(cfg.RT.IPCRingCapacity)
	notifier := watchdog.NewIpcNotifier(queue, logger)
	timer := watchdog.NewTimer(notifier, cfg.Watchdog.Interval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := rtcycle.New(rtcycle.Config{
		Period:             period,
		SensorWidth:        sensorWidth,
		ActuatorWidth:      actuatorWidth,
		ConsecutiveMissLim: cfg.RT.ConsecutiveMiss,
		Exchanger:          exchanger,
		Control:            nullControl,
		Logger:             logger,
		Metrics:            rtMetrics,
		OnDeadlineMiss: func(cycleIndex uint64, overrun time.Duration, consecutive int) {
			logger.LogDeadlineMiss(ctx, cycleIndex, overrun, consecutive)
		},
		OnCriticalMiss: func(cycleIndex uint64, consecutive int) {
			logger.WithComponent("rtcycle").Errorf("critical deadline miss streak at cycle %d (%d consecutive)", cycleIndex, consecutive)
		},
	})

	if err := timer.SendReady(); err != nil {
		logger.WithComponent("watchdog").WithError(err).Warn("initial ready notification failed")
	}
	timer.Start()

	logger.WithComponent("rtcycled").Infof("entering cycle loop at period=%s driver=%s", period, driver.Protocol())
	runErr := engine.Run(ctx, time.Now, time.Sleep)

	// Shutdown order: timer, fieldbus, metrics server.
	timer.Stop()
	if err := bus.Stop(); err != nil {
		logger.WithComponent("fieldbus").WithError(err).Warn("bus stop failed during shutdown")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithComponent("metrics").WithError(err).Warn("metrics server shutdown failed")
	}

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

// nullControl is the control-algorithm hook. Concrete motion/control
// algorithms are out of this module's scope; a real deployment substitutes
// its own ControlFunc here.
func nullControl(_ uint64, _ []float64, _ []float64) {}

// breakerExchanger wraps a fieldbus.Driver's read/write calls in a circuit
// breaker so a wedged or faulting driver trips open rather than stalling
// every subsequent cycle on the same failure.
type breakerExchanger struct {
	driver  fieldbus.Driver
	breaker *resilience.CircuitBreaker
}

func (e *breakerExchanger) ReadSensors(out []float64) error {
	return e.breaker.Execute(context.Background(), func() error {
		return e.driver.ReadSensors(out)
	})
}

func (e *breakerExchanger) WriteActuators(in []float64) error {
	return e.breaker.Execute(context.Background(), func() error {
		return e.driver.WriteActuators(in)
	})
}

func rtMetricsAddr() string {
	if v, ok := os.LookupEnv("MXRC_RT_METRICS_ADDR"); ok && v != "" {
		return v
	}
	// rtcycled and orchestratord are separate processes; each needs its own
	// listener. Default to a fixed port next to the Non-RT metrics address.
	return "127.0.0.1:9091"
}
