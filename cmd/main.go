package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sleepywoodpecker/ppg-scope/internal/api"
	"sleepywoodpecker/ppg-scope/internal/config"
	"sleepywoodpecker/ppg-scope/internal/device"
	"sleepywoodpecker/ppg-scope/internal/logger"
	"sleepywoodpecker/ppg-scope/internal/pipeline"
	"sleepywoodpecker/ppg-scope/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: search ., ./config, /etc/ppg-scope)")
	plot := flag.Bool("plot", false, "start plotting immediately")
	record := flag.Bool("record", false, "start recording immediately")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// first initialize the main logger
	logger, err := logger.NewLogger(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// context handler for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var dev device.Device
	if cfg.Device.Simulate {
		logger.Info("[main] using simulated sensor")
		dev = device.NewSimulator(0)
		cfg.Device.Service = device.SimulatedServiceID
		cfg.Device.Characteristic = device.SimulatedCharacteristicID
	} else {
		dev = device.NewSerialBridge(cfg.SerialConfig(), logger)
	}

	manager := pipeline.NewManager(dev, cfg.SessionOptions(), logger)
	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: api.NewServer(manager, cfg.Chart.MinYSpan, cfg.Shutdown.Timeout, logger).NewRouter(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("[main] serving http", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.Telemetry.Addr != "" {
		// initialize UDP connection to telegraf
		udpAddr, err := net.ResolveUDPAddr("udp", cfg.Telemetry.Addr)
		if err != nil {
			logger.Fatal("[main] invalid telemetry address", zap.Error(err), zap.String("addr", cfg.Telemetry.Addr))
		}
		udpConn, err := net.DialUDP("udp", nil, udpAddr)
		if err != nil {
			logger.Fatal("[main] cannot reach telemetry sink", zap.Error(err), zap.String("addr", cfg.Telemetry.Addr))
		}
		defer udpConn.Close()

		sampler := telemetry.NewSampler(cfg.Telemetry.Interval, udpConn, func() *telemetry.Store {
			if s := manager.Current(); s != nil {
				return s.Store()
			}
			return nil
		}, logger)
		g.Go(func() error { return sampler.Run(gctx) })
	}

	if *record {
		if _, err := manager.StartRecording(gctx); err != nil {
			logger.Error("[main] could not start recording", zap.Error(err))
		}
	}
	if *plot {
		if _, err := manager.StartPlotting(gctx); err != nil {
			logger.Error("[main] could not start plotting", zap.Error(err))
		}
	}

	// run until a signal arrives or a long-lived component fails
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[main] shutting down")

		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer stopCancel()

		var err error
		if stopErr := manager.Stop(stopCtx); stopErr != nil {
			logger.Warn("[main] error stopping session", zap.Error(stopErr))
		}
		if shutdownErr := server.Shutdown(stopCtx); shutdownErr != nil {
			err = shutdownErr
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("[main] exited with error", zap.Error(err))
	}
}
