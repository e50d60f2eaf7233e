package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"cleverprint/agent/api"
	"cleverprint/agent/config"
	"cleverprint/agent/executor"
	"cleverprint/agent/history"
	"cleverprint/agent/logger"
	"cleverprint/agent/materializer"
	"cleverprint/agent/printer"
	"cleverprint/agent/remote"
	"cleverprint/agent/spooler"
)

// historyRetention bounds the supplemental job history log (C8); rows
// recorded before this age are pruned periodically so the audit log doesn't
// grow unbounded.
const (
	historyRetention     = 30 * 24 * time.Hour
	historyPruneInterval = 1 * time.Hour
)

// agent wires together every component (Config → Spooler → Local HTTP API →
// Remote Client) and owns their startup/shutdown order.
type agent struct {
	log     *logger.Logger
	cfg     *config.Store
	spool   *spooler.Spooler
	history *history.Store
	apiSrv  *api.Server
	remote  *remote.Client

	pruneWG sync.WaitGroup
}

// newAgent loads configuration and constructs every component without
// starting any background goroutines yet; call Start to bring it up.
func newAgent(configPath string, foreground bool) (*agent, error) {
	dataDir, err := config.DataDirectory()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.json")
	}

	logDir := filepath.Join(dataDir, "logs")
	log := logger.New(logger.INFO, logDir, 1000)
	log.SetConsoleOutput(foreground)
	log.Info("agent starting", "version", Version, "gitCommit", GitCommit, "buildType", BuildType)

	cfg, err := config.Open(configPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening config store: %w", err)
	}

	historyPath := filepath.Join(dataDir, "history.db")
	historyStore, err := history.Open(historyPath, log)
	if err != nil {
		log.Warn("failed to open job history store, continuing without it", "error", err)
		historyStore = nil
	}

	enumerator := printer.New(log)
	exec := executor.New(log)
	exec.SumatraPath = cfg.SumatraPath()
	mat := materializer.New(log)

	var historyForSpooler spooler.HistoryStore
	if historyStore != nil {
		historyForSpooler = historyStore
	}
	sp := spooler.New(cfg, log, mat, exec, historyForSpooler)

	var historyForAPI api.HistoryReader
	if historyStore != nil {
		historyForAPI = historyStore
	}
	apiSrv := api.New(sp, enumerator, historyForAPI, log)

	remoteClient := remote.New(cfg, sp, log, Version)

	return &agent{
		log:     log,
		cfg:     cfg,
		spool:   sp,
		history: historyStore,
		apiSrv:  apiSrv,
		remote:  remoteClient,
	}, nil
}

// Start launches every component in spec order: Config is already loaded by
// newAgent; Spooler → Local HTTP API → Remote Client follow here.
func (a *agent) Start(ctx context.Context) error {
	a.spool.Start(ctx)

	addr := fmt.Sprintf(":%d", a.cfg.APIPort())
	if err := a.apiSrv.Start(addr); err != nil {
		return fmt.Errorf("starting local API on %s: %w", addr, err)
	}

	a.remote.Start(ctx)

	if a.history != nil {
		a.pruneWG.Add(1)
		go a.historyPruneLoop(ctx)
	}

	return nil
}

// historyPruneLoop periodically trims the supplemental job history log
// (C8) down to historyRetention; it has no effect on the live in-memory
// queue, which the spooler owns independently.
func (a *agent) historyPruneLoop(ctx context.Context) {
	defer a.pruneWG.Done()

	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.history.Prune(ctx, time.Now().Add(-historyRetention))
			if err != nil {
				a.log.Warn("history prune failed", "error", err)
				continue
			}
			if n > 0 {
				a.log.Debug("pruned job history", "rowsRemoved", n)
			}
		}
	}
}

// Shutdown runs the reverse of Start: Remote Client (final offline
// heartbeat) → Local HTTP API → Spooler.
func (a *agent) Shutdown() {
	a.remote.Shutdown()

	if err := a.apiSrv.Shutdown(5 * time.Second); err != nil {
		a.log.Warn("local API shutdown error", "error", err)
	}

	if err := a.spool.Shutdown(5 * time.Second); err != nil {
		a.log.Warn("spooler shutdown error", "error", err)
	}

	if a.history != nil {
		a.pruneWG.Wait()
		if err := a.history.Close(); err != nil {
			a.log.Warn("history store close error", "error", err)
		}
	}

	a.log.Close()
}
