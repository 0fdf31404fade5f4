package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	privaterag "github.com/privaterag/privaterag"
	"github.com/privaterag/privaterag/internal/config"
	"github.com/privaterag/privaterag/pkg/anchor"
	"github.com/privaterag/privaterag/pkg/apiServer"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the configuration file")
		listenAddr = flag.String("listen", "", "listen address override")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	conf, err := config.Load(*configPath)
	if err != nil {
		logger.Error("cannot load configuration", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		conf.ListenAddr = *listenAddr
	}

	kvLog := logrus.New()
	kvLog.SetLevel(logrus.InfoLevel)
	if *debug {
		kvLog.SetLevel(logrus.DebugLevel)
	}

	var anchorer anchor.Anchorer
	if conf.Anchor.Contract != "" {
		anchorer = anchor.NewCLIAnchorer(anchor.CLIConfig{
			Binary:   conf.Anchor.Binary,
			Contract: conf.Anchor.Contract,
			SignAs:   conf.Anchor.SignAs,
			Network:  conf.Anchor.Network,
			Logger:   logger,
		})
	} else {
		logger.Warn("no anchoring contract configured, documents will not be anchored")
	}

	core, err := privaterag.New(privaterag.Config{
		DataDir:       conf.DataDir,
		BlobDir:       conf.BlobDir,
		Secret:        conf.SecretKey,
		MinimumFreeGB: conf.MinimumFreeGB,
		AnchorGroupID: conf.Anchor.GroupID,
		AnchorUserID:  conf.Anchor.SignAs,
		Anchorer:      anchorer,
		Logger:        logger,
		KVLogger:      kvLog,
	})
	if err != nil {
		logger.Error("cannot configure core", "error", err)
		os.Exit(1)
	}
	if err := core.Start(); err != nil {
		logger.Error("cannot start core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	server := &http.Server{
		Addr:              conf.ListenAddr,
		Handler:           apiServer.New(core, apiServer.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	logger.Info("listening", "listenAddr", conf.ListenAddr, "dataDir", conf.DataDir)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
