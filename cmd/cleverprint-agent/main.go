package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kardianos/service"

	"cleverprint/agent/config"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path (default: OS data directory)")
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run, status")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	healthCheck := flag.Bool("health", false, "Probe the local /health endpoint and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CleverPrintingAgent %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		fmt.Printf("Build Type: %s\n", BuildType)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *healthCheck {
		if err := runHealthCheck(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("healthy")
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd, *configPath)
		return
	}

	if !service.Interactive() {
		runAsService()
		return
	}

	runInteractive(*configPath)
}

// runInteractive starts the agent in the foreground, mirroring logs to
// stdout, and blocks until an interrupt or terminate signal arrives.
func runInteractive(configPath string) {
	a, err := newAgent(configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize agent: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start agent: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
	a.Shutdown()
}

// runHealthCheck probes the locally configured API port's /health endpoint
// without starting the agent, for use by monitoring and container healthchecks.
func runHealthCheck(configPath string) error {
	dataDir, err := config.DataDirectory()
	if err != nil {
		return err
	}
	if configPath == "" {
		configPath = dataDir + string(os.PathSeparator) + "config.json"
	}

	port := 3001
	if cfg, err := config.Open(configPath, nil); err == nil {
		port = cfg.APIPort()
	}

	client := &http.Client{Timeout: 5 * time.Second}
	endpoint := fmt.Sprintf("http://127.0.0.1:%d/health", port)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, endpoint)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	if payload.Status != "ok" && payload.Status != "healthy" {
		return fmt.Errorf("agent reported status %q", payload.Status)
	}
	return nil
}
