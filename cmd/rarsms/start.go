package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sonyccd/rarsms/internal/aprs"
	"github.com/sonyccd/rarsms/internal/bridge"
	"github.com/sonyccd/rarsms/internal/config"
	"github.com/sonyccd/rarsms/internal/logging"
	"github.com/sonyccd/rarsms/internal/store"
)

func newStartCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the APRS connector daemon",
		Long:  "Connects to APRS-IS, relays authorized inbound messages into the record store, and delivers queued outbound messages back onto the network.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func runStart(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.Logging)
	log.WithFields(logrus.Fields{
		"version":  Version,
		"config":   configPath,
		"callsign": cfg.APRS.Callsign,
		"server":   cfg.APRS.Server,
	}).Info("Starting RARSMS APRS connector")

	if !cfg.Bridge.Enabled {
		log.Info("APRS connector is disabled in configuration")
		return nil
	}

	recordStore, err := store.NewClient(store.ClientOpts{
		BaseURL: cfg.Store.URL,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	session, err := aprs.NewSession(aprs.SessionOpts{
		Callsign: cfg.APRS.Callsign,
		Passcode: cfg.APRS.Passcode,
		Server:   cfg.APRS.Server,
		Port:     cfg.APRS.Port,
		Filter:   cfg.APRS.Filter,
		Version:  Version,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	daemon, err := bridge.NewDaemon(bridge.DaemonOpts{
		Config:  cfg,
		Session: session,
		Store:   recordStore,
		Logger:  log,
		Version: Version,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
	}()

	return daemon.Run(ctx)
}
