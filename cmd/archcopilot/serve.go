package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rahul/archcopilot/internal/agent"
	"github.com/rahul/archcopilot/internal/observability"
	"github.com/rahul/archcopilot/internal/server"
	"github.com/rahul/archcopilot/internal/store"
)

var (
	serveListen        string
	serveShutdownGrace time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides app.listen)")
	serveCmd.Flags().DurationVar(&serveShutdownGrace, "shutdown-grace", 10*time.Second, "time allowed for in-flight requests on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	term := observability.NewTermWriter()
	observability.PrintBanner(term, "SYSTEM DESIGN COPILOT")
	log.SetOutput(term)

	a, err := newApp(cfg, term)
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := store.NewHistoryStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open submission store: %w", err)
	}
	defer history.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go store.NewJanitor(history, cfg.Storage.Retention, cfg.Storage.SweepInterval).Start(ctx)
	go agent.NewScheduler(a.tracker, a.gate, a.logger, term).Start(ctx)

	srv := &server.Server{
		Copilot:  a.copilot,
		Store:    history,
		Notifier: notifiers(cfg),
		Tracker:  a.tracker,
		Gate:     a.gate,
		Limiter:  server.NewLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond),
		Logger:   a.logger,
	}

	addr := cfg.App.Listen
	if serveListen != "" {
		addr = serveListen
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Pipeline.RunTimeout + 30*time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	srv.Wait()
	log.Println("\033[95m[ EXIT ] SERVER STOPPED.\033[0m")
	return nil
}
