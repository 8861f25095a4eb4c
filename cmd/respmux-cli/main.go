package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awinterman/respmux/engine"
	"github.com/awinterman/respmux/request"
	"github.com/awinterman/respmux/resp/adapter"
	"github.com/awinterman/respmux/transport"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.String("port", "6379", "server port")
	username := flag.String("user", "", "AUTH username")
	password := flag.String("pass", "", "AUTH password")
	ping := flag.Duration("ping-interval", 30*time.Second, "health check PING interval")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *host, *port, *username, *password, *ping); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

// run connects respmux's engine to a single endpoint, issues a PING,
// and keeps the engine alive until ctx is cancelled — a minimal
// demonstration of the public surface, not a full CLI.
func run(ctx context.Context, host, port, username, password string, pingInterval time.Duration) error {
	e := engine.New(
		&transport.TCP{},
		engine.EndpointConfig{Host: host, Port: port, Username: username, Password: password, ClientName: "respmux-cli"},
		engine.Timeouts{ConnectTimeout: 5 * time.Second, PingInterval: pingInterval, HealthCheckTimeout: 2 * time.Second},
	)

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	go func() {
		for msg := range e.Push() {
			slog.Info("push", "kind", msg.Kind())
		}
	}()

	req := request.New()
	if err := req.Push("PING"); err != nil {
		return err
	}
	var reply string
	if err := e.Exec(ctx, req, []adapter.Adapter{adapter.String{Dst: &reply}}); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	fmt.Println(reply)

	select {
	case <-ctx.Done():
	case err := <-runErr:
		return err
	}
	return nil
}
