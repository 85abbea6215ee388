package root

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/docker/eventreporter/pkg/collector"
)

func newCollectorCmd() *cobra.Command {
	var (
		listenAddr string
		status     int
	)

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run a local collector that accepts analytics batches",
		Long: `Run a local collector for development. Batches are accepted on POST /collect,
per-client counters are served on GET /stats.`,
		Example: `  eventreporter collector --listen 127.0.0.1:8080
  eventreporter collector --listen unix:///tmp/collector.sock
  eventreporter collector --status 503`,
		GroupID: "advanced",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if http.StatusText(status) == "" {
				return fmt.Errorf("invalid --status %d", status)
			}

			ln, err := collector.Listen(ctx, listenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
			}
			go func() {
				<-ctx.Done()
				_ = ln.Close()
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Collector listening on %s (POST /collect, GET /stats)\n", ln.Addr())
			slog.Debug("Collector started", "addr", ln.Addr().String(), "status", status)

			return collector.New(collector.WithStatus(status)).Serve(ctx, ln)
		},
	}
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "127.0.0.1:8080", "Address to listen on (host:port or unix://path)")
	cmd.Flags().IntVar(&status, "status", http.StatusNoContent, "HTTP status returned for every batch, to simulate failures")

	return cmd
}
