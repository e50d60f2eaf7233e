package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface, wrapping the agent so it can run
// under systemd, launchd, or the Windows service manager.
type program struct {
	configPath string

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("CleverPrintingAgent service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	a, err := newAgent(p.configPath, false)
	if err != nil {
		if p.svcLogger != nil {
			p.svcLogger.Error(err)
		}
		return
	}

	if err := a.Start(p.ctx); err != nil {
		if p.svcLogger != nil {
			p.svcLogger.Error(err)
		}
		return
	}

	<-p.ctx.Done()
	a.Shutdown()
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("CleverPrintingAgent service stop requested")
	}
	if p.cancel != nil {
		p.cancel()
	}

	timeout := time.After(30 * time.Second)
	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("CleverPrintingAgent service stopped gracefully")
		}
	case <-timeout:
		if p.svcLogger != nil {
			p.svcLogger.Warning("CleverPrintingAgent service stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the platform-specific service registration.
func getServiceConfig() *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "CleverPrintingAgent")
	case "darwin":
		workingDir = "/Library/Application Support/CleverPrintingAgent"
	default:
		workingDir = "/var/lib/cleverprint-agent"
	}

	return &service.Config{
		Name:             "CleverPrintingAgent",
		DisplayName:      "Clever Printing Agent",
		Description:      "Local print spooler that accepts print jobs over HTTP and from a command center, queues and dispatches them to installed printers.",
		WorkingDirectory: workingDir,
		Arguments:        []string{"--service", "run"},
		Option: service.KeyValue{
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",
			"SendSIGKILL":       true,

			"RunAtLoad":     true,
			"KeepAlive":     true,
			"SessionCreate": false,
		},
	}
}

func setupServiceDirectories() error {
	var dirs []string
	switch runtime.GOOS {
	case "windows":
		baseDir := filepath.Join(os.Getenv("ProgramData"), "CleverPrintingAgent")
		dirs = []string{baseDir, filepath.Join(baseDir, "logs")}
	case "darwin":
		baseDir := "/Library/Application Support/CleverPrintingAgent"
		dirs = []string{baseDir, filepath.Join(baseDir, "logs"), "/var/log/cleverprint-agent"}
	default:
		dirs = []string{"/var/lib/cleverprint-agent", "/var/log/cleverprint-agent", "/etc/cleverprint-agent"}
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// handleServiceCommand processes install/uninstall/start/stop/status against
// the platform service manager.
func handleServiceCommand(cmd, configPath string) {
	svcConfig := getServiceConfig()
	prg := &program{configPath: configPath}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to set up service directories: %v\n", err)
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to install service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service installed")

	case "uninstall":
		if err := s.Uninstall(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to uninstall service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service uninstalled")

	case "start":
		if err := s.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service started")

	case "stop":
		if err := s.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to stop service: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("service stopped")

	case "run":
		if err := s.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "service run exited with error: %v\n", err)
			os.Exit(1)
		}

	case "status":
		status, statusErr := s.Status()
		var text string
		switch status {
		case service.StatusRunning:
			text = "running"
		case service.StatusStopped:
			text = "stopped"
		default:
			text = "not installed"
		}
		if statusErr != nil {
			fmt.Printf("status: %s (%v)\n", text, statusErr)
		} else {
			fmt.Printf("status: %s\n", text)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown --service command %q (expected install, uninstall, start, stop, run, status)\n", cmd)
		os.Exit(1)
	}
}

// runAsService starts the agent under the platform service manager; used
// when the process is launched non-interactively (e.g. by systemd).
func runAsService() {
	svcConfig := getServiceConfig()
	prg := &program{}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		os.Exit(1)
	}
	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}
