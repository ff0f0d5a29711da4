package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgeforge/internal/config"
	"edgeforge/internal/httpapi"
	"edgeforge/internal/manager"
	"edgeforge/internal/orchestrator"
)

const (
	shutdownTimeout = 5 * time.Second
	// drainTimeout bounds how long queued and running builds may finish
	// after the listener closes before they are cancelled.
	drainTimeout = 30 * time.Second
)

// serveAPI runs the REST build service until SIGINT/SIGTERM.
func serveAPI(cfg *Config, rt config.Config, workers, queueDepth int) error {
	log := cfg.log
	orch, err := orchestrator.New(rt, log)
	if err != nil {
		return err
	}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Builder:       orch,
		PackageRoot:   rt.PackageRoot,
		Workers:       workers,
		MaxQueueDepth: queueDepth,
		Log:           log,
	})

	httpapi.SetLogger(log)
	httpapi.SetCORSOptions(len(rt.CORSOrigins) > 0, rt.CORSOrigins)
	srv := &http.Server{Addr: rt.Addr, Handler: httpapi.NewMux(mgr)}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", rt.Addr).
			Str("package_root", rt.PackageRoot).
			Msg("edgeforge serving")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if active, total := mgr.Counts(); active > 0 {
		log.Info().Int("active", active).Int("total", total).Msg("draining builds")
	}
	if err := mgr.Close(drainCtx); err != nil {
		log.Warn().Err(err).Msg("builds cancelled before finishing")
	}
	return nil
}
