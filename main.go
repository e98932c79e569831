package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jwatral/qdomyos-zwift/internal/backend"
	"github.com/jwatral/qdomyos-zwift/internal/config"
	"github.com/jwatral/qdomyos-zwift/src"
	"github.com/jwatral/qdomyos-zwift/src/chart"
	"github.com/jwatral/qdomyos-zwift/src/inclination"
	"github.com/jwatral/qdomyos-zwift/src/logger"
	"github.com/jwatral/qdomyos-zwift/src/queue"
	"github.com/jwatral/qdomyos-zwift/src/web"

	"github.com/joho/godotenv"
)

const frameURL = "/api/inclination"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg, err := src.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.InitLogger(cfg.LogConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("inclination feed stopped")
	}
	logger.Info().Msg("inclination feed stopped")
}

func run(ctx context.Context, cfg *src.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	yamlConfig, err := config.LoadConfig(cfg.ServerConfig.ChartConfig)
	if err != nil {
		return err
	}
	chartOpts, err := config.BuildChartOptions(yamlConfig)
	if err != nil {
		return err
	}
	chartOpts.FrameURL = frameURL
	chartOpts.RefreshEvery = cfg.PollerConfig.Interval

	line := chart.NewLine(chartOpts)
	mode := inclination.Strict
	if !cfg.PollerConfig.StrictDecode {
		mode = inclination.Lenient
	}
	session := inclination.NewSession(line, mode)

	var sim *backend.Backend
	if cfg.ServerConfig.Simulate {
		profile := backend.NewProfile(chartOpts.Slots, 1, chartOpts.YMin, chartOpts.YMax, uint64(time.Now().UnixNano()))
		sim = backend.New(profile, logger.Component("backend"))
	}

	var tasks []func(context.Context) error
	var transport queue.Transport
	switch cfg.TransportConfig.Kind {
	case "redis":
		rt, err := queue.NewRedisTransport(ctx, cfg.TransportConfig.RedisURL, cfg.TransportConfig.RequestQueue, logger.Component("queue"))
		if err != nil {
			return err
		}
		defer rt.Close()
		transport = rt
		if sim != nil {
			responder := sim.RedisResponder(rt.Client(), cfg.TransportConfig.RequestQueue)
			tasks = append(tasks, responder.Serve)
		}
	default:
		url := cfg.TransportConfig.BackendURL
		if sim != nil {
			url, err = loopbackURL(cfg.ServerConfig.Addr)
			if err != nil {
				return err
			}
		}
		wt := queue.NewWebSocketTransport(url, logger.Component("queue"))
		defer wt.Close()
		transport = wt
	}

	poller := inclination.NewPoller(session, transport, cfg.PollerConfig, logger.Component("poller"))
	server := web.NewServer(line, poller, logger.Component("web"))
	if sim != nil && cfg.TransportConfig.Kind != "redis" {
		server.Mount("/ws", sim.WebSocketHandler())
	}

	tasks = append(tasks,
		func(ctx context.Context) error { return server.ListenAndServe(ctx, cfg.ServerConfig.Addr) },
		poller.Run,
	)
	// The transports are closed by the defers above, after every task is done.
	return supervise(ctx, tasks...)
}

// supervise runs tasks until the first one returns, then cancels the rest and
// waits for all of them. It returns the first task's error.
func supervise(ctx context.Context, tasks ...func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(tasks))
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- task(ctx)
		}()
	}

	err := <-errCh
	cancel()
	wg.Wait()
	return err
}

// loopbackURL points the websocket transport at the simulator mounted on our
// own HTTP server.
func loopbackURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid HTTP_ADDR %q: %w", addr, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "ws://" + net.JoinHostPort(host, port) + "/ws", nil
}
