package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mapsharvest-engine/internal/httpapi"
	"mapsharvest-engine/internal/scheduler"
	"mapsharvest-engine/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API",
	Long: `Starts the engine API on a loopback port. Jobs are submitted with POST /scrape,
followed through GET /status or the /events stream, and their files fetched
from /download/{name}.

The shutdown token is printed on startup; POST /shutdown with the
X-Shutdown-Token header stops the engine after the running job delivers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default 127.0.0.1:<app.port>)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.config()
	mgr := a.newManager()
	defer mgr.Close()

	go scheduler.Every(ctx, cfg.Jobs.PruneEvery, "prune-jobs", func(context.Context) error {
		if n := mgr.Prune(cfg.Jobs.Retention); n > 0 {
			a.log.Info("pruned finished jobs", "count", n)
		}
		return nil
	})
	if a.db != nil {
		go scheduler.Every(ctx, time.Hour, "cleanup-runs", func(ctx context.Context) error {
			n, err := store.CleanupOldRuns(ctx, a.db.Pool, time.Now().Add(-cfg.Storage.HistoryRetention))
			if n > 0 {
				a.log.Info("removed old runs", "count", n)
			}
			return err
		})
	}

	mux := httpapi.NewMux(httpapi.Deps{
		DB:          dbPool(a),
		Hub:         a.hub,
		Jobs:        mgr,
		CfgVal:      &a.cfgVal,
		UserCfgPath: a.cfgPath,
		LoadCfg:     a.loadConfig,
		OutputDir:   a.outputDir(),
		Started:     time.Now(),
	})

	token, err := randomToken(16)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.App.Port)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           httpapi.Wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	mux.HandleFunc("/shutdown", shutdownHandler(token, srv))

	a.log.Info("engine listening", "addr", "http://"+ln.Addr().String(), "data_dir", a.dataDir, "output", a.outputDir())
	fmt.Fprintf(cmd.OutOrStdout(), "SHUTDOWN_TOKEN=%s\n", token)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		a.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}
	return nil
}
