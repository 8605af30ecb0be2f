package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	httpAdapter "github.com/stevekinney/silvan-sub003/internal/adapters/http"
	"github.com/stevekinney/silvan-sub003/internal/cli"
	"github.com/stevekinney/silvan-sub003/pkg/artifacts"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only inspection API",
	Long:  `Serves run state, convergence, audit events, artifacts and metrics as JSON over HTTP.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return withApp(cmd, func(app *cli.App) error {
			if addr == "" {
				addr = app.Config.Serve.Addr
			}
			handler := httpAdapter.NewHandler(app.Workspace,
				httpAdapter.WithPreviews(artifacts.NewPreviewCache(app.Workspace.Artifacts(), 0)),
				httpAdapter.WithMetrics(app.Metrics.Handler()),
				httpAdapter.WithLogger(app.Logger),
			)
			srv := &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				app.Logger.Info("inspection API listening", "addr", addr, "root", app.Workspace.Layout().Root)
				serverErrors <- srv.ListenAndServe()
			}()

			select {
			case err := <-serverErrors:
				return err
			case <-cmd.Context().Done():
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					app.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
					_ = srv.Close()
				}
				if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				app.Logger.Info("inspection API stopped")
				return nil
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default serve.addr)")
}
