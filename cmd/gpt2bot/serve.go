package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/server"
	"github.com/sokinpui/gpt2bot.go/rpc"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveNoWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot with its gRPC and HTTP endpoints",
	Long: `Run the bot. With the memory broker a worker runs in this process.
With the redis broker, --no-worker leaves generation to separate
"gpt2bot worker" processes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not run a worker in this process (redis broker only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	if serveNoWorker && s.Broker != "redis" {
		return errors.New("--no-worker requires the redis broker")
	}
	localWorker := !serveNoWorker

	a, err := newApp(s, localWorker)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.pingRedis(ctx); err != nil {
		return err
	}

	d, err := bot.NewDispatcher(a.state, s.CommandPrefix)
	if err != nil {
		return err
	}

	if localWorker {
		go a.consume(ctx)
	}

	if s.WatchFiles {
		closeWatch, err := a.watchFiles(ctx)
		if err != nil {
			log.Printf("Not watching files: %v", err)
		} else {
			defer closeWatch()
		}
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	gs := grpc.NewServer()
	rpc.RegisterBotServer(gs, server.New(a.state, d))

	mux := http.NewServeMux()
	server.NewHTTPServer(a.state, d).RegisterRoutes(mux)
	hs := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Printf("gRPC server listening at %v", lis.Addr())
		errCh <- gs.Serve(lis)
	}()
	go func() {
		log.Printf("HTTP server listening at %s", hs.Addr)
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.state.Ready(ctx)

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received, stopping server...")
	case err := <-errCh:
		stop()
		gs.Stop()
		hs.Close()
		return fmt.Errorf("failed to serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	gs.GracefulStop()
	return nil
}
