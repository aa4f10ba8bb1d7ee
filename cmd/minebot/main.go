package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sudoapty-afk/glowing-barnacle/internal/config"
	"github.com/sudoapty-afk/glowing-barnacle/internal/control"
	"github.com/sudoapty-afk/glowing-barnacle/internal/gameclient"
	"github.com/sudoapty-afk/glowing-barnacle/internal/grpchealth"
	"github.com/sudoapty-afk/glowing-barnacle/internal/journal"
	"github.com/sudoapty-afk/glowing-barnacle/internal/mcpserver"
	"github.com/sudoapty-afk/glowing-barnacle/internal/mock"
	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
	"github.com/sudoapty-afk/glowing-barnacle/internal/stats"
	"github.com/sudoapty-afk/glowing-barnacle/internal/telemetry"
	"github.com/sudoapty-afk/glowing-barnacle/internal/trigger"
	"github.com/sudoapty-afk/glowing-barnacle/internal/ws"
)

var version = "dev"

const observerBuffer = 256

func main() {
	mockMode := flag.Bool("mock", false, "Use a simulated game server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	autostart := flag.Bool("autostart", false, "Start the bot with the configured defaults")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *autostart {
		cfg.Bot.Autostart = true
	}
	if cfg.Server.AuthToken == "" && !isLoopback(cfg.Server.Host) {
		tok, err := config.GenerateToken()
		if err != nil {
			log.Fatalf("Failed to generate auth token: %v", err)
		}
		cfg.Server.AuthToken = tok
		log.Printf("Listening on %s without auth_token; generated token %s", cfg.Server.Host, tok)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Printf("Tracing disabled: %v", err)
	}
	defer shutdownTracing(context.Background())

	var dialer session.Dialer
	if *mockMode {
		log.Println("Starting in mock mode")
		dialer = mock.NewGenerator(mock.Options{
			SpawnDelay:  cfg.Mock.SpawnDelay,
			MaxLifetime: cfg.Mock.MaxLifetime,
			FailRate:    cfg.Mock.FailRate,
		})
	} else {
		log.Println("Starting in real mode")
		dialer = gameclient.NewDialer(gameclient.Options{
			Path:             cfg.Game.Path,
			HandshakeTimeout: cfg.Game.HandshakeTimeout,
			PingInterval:     cfg.Game.PingInterval,
			WriteTimeout:     cfg.Game.WriteTimeout,
		})
	}

	mgr := session.NewManager(dialer, nil)
	privacy := cfg.Privacy.NewPrivacyFilter()

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	observe := func() <-chan session.Event {
		ch := make(chan session.Event, observerBuffer)
		mgr.AddObserver(ch)
		return ch
	}

	opts := []control.Option{control.WithPrivacy(privacy)}
	decider, err := trigger.New(trigger.Config{
		Model:   cfg.Trigger.Model,
		BaseURL: cfg.Trigger.BaseURL,
		APIKey:  cfg.Trigger.APIKey,
		Timeout: cfg.Trigger.Timeout,
	})
	switch {
	case errors.Is(err, trigger.ErrDisabled):
		log.Println("Message trigger disabled (no API key or base URL)")
	case err != nil:
		log.Fatalf("Failed to set up message trigger: %v", err)
	default:
		opts = append(opts, control.WithTrigger(decider, cfg.Trigger.Messages))
	}
	svc := control.New(mgr, cfg.Bot, opts...)

	broadcaster := ws.NewBroadcaster(mgr, privacy, cfg.Server.Throttle, cfg.Server.Snapshot, cfg.Server.MaxConns)
	defer broadcaster.Stop()
	wsEvents := observe()
	goRun(func() { broadcaster.Consume(ctx, wsEvents) })

	server := ws.NewServer(svc, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries)
		if err != nil {
			log.Fatalf("Failed to open journal: %v", err)
		}
		defer j.Close()
		events := observe()
		goRun(func() { j.Consume(ctx, events) })
		server.SetJournal(j)
	}

	tracker, statsCh, err := stats.NewTracker(stats.NewStore(cfg.Stats.Dir), cfg.Stats.SaveInterval)
	if err != nil {
		log.Printf("Stats disabled: %v", err)
	} else {
		mgr.AddObserver(statsCh)
		goRun(func() { tracker.Run(ctx) })
		server.SetStatsTracker(tracker)
	}

	if cfg.GRPCHealth.Addr != "" {
		hs := grpchealth.New()
		events := observe()
		goRun(func() { hs.Consume(ctx, events) })
		goRun(func() {
			if err := hs.Serve(ctx, cfg.GRPCHealth.Addr); err != nil {
				log.Printf("gRPC health server error: %v", err)
			}
		})
	}

	server.SetMCPHandler(mcpserver.Handler(mcpserver.New(svc, version)))

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	goRun(func() { mgr.Run(ctx) })

	if cfg.Bot.Autostart {
		if err := svc.AutoStart(); err != nil {
			log.Printf("Autostart failed: %v", err)
		}
	}

	err = ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(mux))
	cancel()
	log.Println("Shutting down...")
	wg.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
