package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/2jSoftware/s2t/internal/capture"
	"github.com/2jSoftware/s2t/internal/config"
	serverhttp "github.com/2jSoftware/s2t/internal/http"
	"github.com/2jSoftware/s2t/internal/metrics"
	"github.com/2jSoftware/s2t/internal/pipeline"
	"github.com/2jSoftware/s2t/internal/recognizer"
	"github.com/2jSoftware/s2t/internal/transcript"
	"github.com/2jSoftware/s2t/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	lvl := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		lvl = l
	}
	log.Logger = log.Level(lvl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	engine, err := recognizer.NewEngine(cfg.ModelPath, float64(cfg.TargetSampleRate))
	if err != nil {
		log.Fatal().Err(err).Str("model", cfg.ModelPath).Msg("failed to load recognizer")
	}
	defer engine.Close()

	source, err := openSource(cfg.Capture)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Capture.Source).Msg("failed to open audio input")
	}
	defer source.Close()

	policy, err := pipeline.ParseLockPolicy(cfg.LockPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid lock policy")
	}
	format := source.Format()
	bus := transcript.NewBus(cfg.BroadcastCapacity)
	state, err := pipeline.NewState(pipeline.Options{
		Channels:   format.Channels,
		InputRate:  format.SampleRate,
		TargetRate: float64(cfg.TargetSampleRate),
		Policy:     policy,
		Recording:  cfg.StartRecording,
	}, pipeline.NewInvoker(engine, bus, m), m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build audio pipeline")
	}

	onErr := func(err error) {
		if errors.Is(err, io.EOF) {
			log.Info().Msg("audio input finished")
			return
		}
		log.Error().Err(err).Msg("audio stream error")
	}
	if err := source.Start(func(block []float32) { state.Process(block) }, onErr); err != nil {
		log.Fatal().Err(err).Msg("failed to start audio input")
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      serverhttp.NewRouter(ws.NewServer(bus, state, m), state, reg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		bus.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.Addr).Msg("speech-to-text server starting")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func openSource(c config.CaptureConfig) (capture.Source, error) {
	if c.Source == config.SourceWAV {
		src, err := capture.NewWAVSource(c.File, c.BlockFrames, c.Loop)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	return capture.NewDeviceSource(c.Device, c.BlockFrames)
}
