// Command orbit runs the ORBIT proactive-assistance daemon: it watches the
// active window, input idle time, and filesystem activity, fuses them into
// a context snapshot every tick, proposes an intent, runs it through the
// decision gate and behavior FSM, and broadcasts the result to any
// connected UI over a websocket.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nourivex/orbit/internal/aggregator"
	"github.com/nourivex/orbit/internal/broadcast"
	"github.com/nourivex/orbit/internal/config"
	"github.com/nourivex/orbit/internal/eventlog"
	"github.com/nourivex/orbit/internal/fsm"
	"github.com/nourivex/orbit/internal/gate"
	"github.com/nourivex/orbit/internal/monitor"
	"github.com/nourivex/orbit/internal/orchestrator"
	"github.com/nourivex/orbit/internal/proposer"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults to ~/.config/orbit/config.yaml)")
	port := flag.Int("port", 0, "override server port")
	eventLogPath := flag.String("eventlog", "", "path to the SQLite event log (defaults to ~/.local/state/orbit/orbit.db, \"\" via -no-eventlog disables it)")
	noEventLog := flag.Bool("no-eventlog", false, "disable the event log sink")
	flag.Parse()

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("orbit: failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if cfg.Monitor.WatchPath == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			cfg.Monitor.WatchPath = home
		}
	}

	window := monitor.NewProcessWindowReader()
	idle := monitor.NewIdleReader()
	files := monitor.NewWatcherFileEventSource(cfg.Monitor.WatchPath)
	if err := files.Start(); err != nil {
		log.Printf("orbit: file watcher failed to start on %s: %v", cfg.Monitor.WatchPath, err)
	}
	agg := aggregator.New(window, idle, files)

	var llm proposer.LLMClient
	mode := proposer.ModeFromString(cfg.AI.Mode)
	if mode != proposer.Dummy {
		llm = proposer.NewDefaultLLMClient(cfg.AI.OllamaURL, cfg.AI.Model, cfg.AI.Timeout)
	}
	pool := proposer.NewVarietyPool(loadResponses(cfg.AI.ResponsesPath))
	prop := proposer.New(mode, llm, pool, cfg.AI.MinSuggestDelay)

	thresholds := gate.ProductionThresholds()
	if cfg.Gate.Profile == "testing" {
		thresholds = gate.TestingThresholds()
	}
	g := gate.New(thresholds)

	behavior := fsm.New()

	broadcaster := broadcast.New(cfg.Server.MaxConnections)
	wsServer := broadcast.NewServer(broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	var evLog *eventlog.Log
	if !*noEventLog {
		logPath := *eventLogPath
		if logPath == "" {
			logPath = cfg.EventLog.Path
		}
		if logPath == "" {
			logPath = config.DefaultEventLogPath()
		}
		evLog, err = eventlog.Open(logPath)
		if err != nil {
			log.Printf("orbit: event log disabled, failed to open %s: %v", logPath, err)
			evLog = nil
		} else {
			defer evLog.Close()
		}
	}

	orch := orchestrator.New(orchestrator.Config{
		Aggregator:   agg,
		Proposer:     prop,
		Gate:         g,
		FSM:          behavior,
		Broadcaster:  broadcaster,
		EventLog:     evLog,
		PollInterval: cfg.Monitor.PollingInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()

	if evLog != nil && cfg.EventLog.RetentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runEventLogCleanup(ctx, evLog, cfg.EventLog.RetentionDays)
		}()
	}

	mux := http.NewServeMux()
	wsServer.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("orbit: shutting down")
		cancel()
		broadcaster.Stop()
		files.Stop()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			log.Println("orbit: timed out waiting for workers to stop")
		}
		if evLog != nil {
			evLog.Close()
		}
		os.Exit(0)
	}()

	log.Printf("orbit: listening on %s:%d (ai_mode=%s gate_profile=%s)", cfg.Server.Host, cfg.Server.Port, cfg.AI.Mode, cfg.Gate.Profile)
	if err := broadcast.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("orbit: server error: %v", err)
	}
}

// runEventLogCleanup sweeps events older than retentionDays out of the
// event log once on startup and then once every 24h until ctx is
// cancelled, matching the original daemon's daily housekeeping pass.
func runEventLogCleanup(ctx context.Context, evLog *eventlog.Log, retentionDays int) {
	sweep := func() {
		removed, err := evLog.CleanupOlderThan(retentionDays)
		if err != nil {
			log.Printf("orbit: event log cleanup failed: %v", err)
			return
		}
		if removed > 0 {
			log.Printf("orbit: event log cleanup removed %d rows older than %d days", removed, retentionDays)
		}
	}

	sweep()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}

// loadResponses reads a JSON variety-pool responses file from path. An
// empty path or any read/parse error yields a zero Responses, which
// NewVarietyPool treats as "use the built-in fallback pool".
func loadResponses(path string) proposer.Responses {
	var resp proposer.Responses
	if path == "" {
		return resp
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("orbit: responses file %s not read, using fallback pool: %v", path, err)
		return resp
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		log.Printf("orbit: responses file %s malformed, using fallback pool: %v", path, err)
		return proposer.Responses{}
	}
	return resp
}
