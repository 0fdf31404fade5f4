// Package privaterag wires the wallet authenticator, tree sealing,
// document vaults and the encrypted blob store into one explicitly
// constructed core with an init/teardown lifecycle. Nothing in here is a
// lazy global; callers own the instance.
package privaterag

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/privaterag/privaterag/internal/keyValStore"
	"github.com/privaterag/privaterag/pkg/anchor"
	"github.com/privaterag/privaterag/pkg/auth"
	"github.com/privaterag/privaterag/pkg/blobstore"
	"github.com/privaterag/privaterag/pkg/treeseal"
	"github.com/privaterag/privaterag/pkg/vault"
	"github.com/privaterag/privaterag/pkg/walletkey"
)

var (
	ErrNotStarted = errors.New("privaterag: core not started")
	ErrClosed     = errors.New("privaterag: core closed")
)

// Config configures the core.
type Config struct {
	// DataDir holds the key-value store. Required.
	DataDir string
	// BlobDir holds the content-addressed blob artifacts. Defaults to
	// DataDir/blobs.
	BlobDir string
	// Secret signs bearer tokens and salts wallet key derivation.
	// Required.
	Secret string
	// MinimumFreeGB is a free-space threshold checked before opening the
	// store. 0 disables the check.
	MinimumFreeGB int

	// AnchorGroupID and AnchorUserID scope anchoring transactions.
	AnchorGroupID string
	AnchorUserID  string
	// Anchorer submits hash-anchoring transactions. Nil disables
	// anchoring; blobs are then stored with a failure marker.
	Anchorer anchor.Anchorer

	// Logger is an optional structured logger. If nil, a stderr logger
	// is used.
	Logger *slog.Logger
	// KVLogger is the logger for the key-value layer.
	KVLogger *logrus.Logger
}

// Core is the assembled service handle.
type Core struct {
	log    *slog.Logger
	config Config

	kv      *keyValStore.KeyValStore
	deriver *walletkey.Deriver

	Auth   *auth.Service
	Sealer *treeseal.Sealer
	Vaults *vault.Store
	Blobs  *blobstore.Store

	started   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	stopGC    chan struct{}
}

func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}

// New constructs a core handle. New does not perform I/O or start
// background goroutines. Call Start to initialize subsystems.
func New(conf Config) (*Core, error) {
	if conf.DataDir == "" {
		return nil, errors.New("privaterag: DataDir must be provided")
	}
	if conf.Secret == "" {
		return nil, errors.New("privaterag: Secret must be provided")
	}
	if conf.BlobDir == "" {
		conf.BlobDir = filepath.Join(conf.DataDir, "blobs")
	}
	if conf.Logger == nil {
		conf.Logger = defaultLogger()
	}

	return &Core{
		log:    conf.Logger,
		config: conf,
		stopGC: make(chan struct{}),
	}, nil
}

// Start opens the key-value store and constructs the services. Safe to
// call multiple times; only the first call has effect.
func (c *Core) Start() error {
	var startErr error
	c.startOnce.Do(func() {
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Path:             c.config.DataDir,
			MinimumFreeSpace: c.config.MinimumFreeGB,
			Logger:           c.config.KVLogger,
		})
		if err != nil {
			startErr = fmt.Errorf("privaterag: cannot open store: %w", err)
			return
		}
		c.kv = kv

		deriver, err := walletkey.NewDeriver(c.config.Secret)
		if err != nil {
			kv.Close()
			startErr = err
			return
		}
		c.deriver = deriver

		authService, err := auth.NewService(kv, c.config.Secret, auth.WithLogger(c.log))
		if err != nil {
			kv.Close()
			startErr = err
			return
		}
		c.Auth = authService

		c.Sealer = treeseal.NewSealer(deriver)
		c.Vaults = vault.NewStore(kv, c.Sealer)

		blobs, err := blobstore.New(blobstore.Config{
			Dir:      c.config.BlobDir,
			GroupID:  c.config.AnchorGroupID,
			UserID:   c.config.AnchorUserID,
			Anchorer: c.config.Anchorer,
			Logger:   c.log,
		})
		if err != nil {
			kv.Close()
			startErr = err
			return
		}
		c.Blobs = blobs

		go c.kv.StartGarbageCollection(10*time.Minute, c.stopGC)

		c.started.Store(true)
		c.log.Info("core started", "data_dir", c.config.DataDir)
	})
	return startErr
}

// Started reports whether Start completed successfully.
func (c *Core) Started() bool {
	return c.started.Load()
}

// Close stops background work and closes the store. Safe to call
// multiple times.
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		if !c.started.Load() {
			return
		}
		close(c.stopGC)
		c.kv.Close()
		c.started.Store(false)
		c.log.Info("core closed")
	})
}
