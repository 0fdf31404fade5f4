// Command registerGroup registers a storage group with the Nova gateway.
// The calling account becomes the group owner; this must run once before
// uploads into a fresh group.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/privaterag/privaterag/internal/config"
	"github.com/privaterag/privaterag/pkg/nova"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the configuration file")
		groupID    = flag.String("group", "", "group id override")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	conf, err := config.Load(*configPath)
	if err != nil {
		logger.Error("cannot load configuration", "error", err)
		os.Exit(1)
	}
	if *groupID != "" {
		conf.Nova.GroupID = *groupID
	}

	message, err := registerGroup(context.Background(), conf.Nova, logger)
	if err != nil {
		logger.Error("cannot register group", "group", conf.Nova.GroupID, "error", err)
		os.Exit(1)
	}
	logger.Info("group registered", "group", conf.Nova.GroupID, "message", message)
}

func registerGroup(ctx context.Context, conf config.NovaConfig, logger *slog.Logger) (string, error) {
	if conf.GroupID == "" {
		return "", errors.New("no group id configured (NOVA_GROUP_ID)")
	}

	client, err := nova.NewClient(nova.Config{
		APIKey:    conf.APIKey,
		AccountID: conf.AccountID,
		BaseURL:   conf.BaseURL,
		MCPURL:    conf.MCPURL,
		Logger:    logger,
	})
	if err != nil {
		return "", err
	}
	return client.RegisterGroup(ctx, conf.GroupID)
}
