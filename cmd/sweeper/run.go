package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourorg/scan-sweeper/internal/app"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan targets from the saved cursor to the end of the list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if v, err := app.ScannerVersion(ctx, cfg.ScannerPath); err != nil {
				log.Warnf("scanner -version failed: %v", err)
			} else if v != "" {
				log.Debugf("scanner version:\n%s", v)
			}

			if every <= 0 {
				_, err = a.Runner.RunBatch(ctx)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				if err == nil {
					log.Info("scanning finished")
				}
				return err
			}

			if cfg.HTTPAddr != "" {
				go serveHealth(ctx, cfg.HTTPAddr, a, log)
			}
			log.Infof("sweeping every %s", every)
			return a.Runner.RunForever(ctx, every)
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "repeat batches on this interval until interrupted (0 runs once)")
	return cmd
}

// serveHealth serves /metrics and /healthz. Health reports the last batch
// and, when archiving, database reachability; 503 if the database is
// unreachable.
func serveHealth(ctx context.Context, addr string, a *app.App, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "healthy"}
		code := http.StatusOK
		if last, ok := a.Runner.LastRun(); ok {
			body["last_run"] = last
		}
		if a.Store != nil {
			dbCtx, dbCancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer dbCancel()
			if err := a.Store.Ping(dbCtx); err != nil {
				log.Warnf("healthz: db ping failed: %v", err)
				body["status"] = "unhealthy"
				body["reason"] = "db unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	s := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(shctx)
	}()
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Errorf("health server: %v", err)
	}
}
