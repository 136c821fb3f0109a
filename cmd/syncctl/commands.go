package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-workorder-sync/internal/app"
	"github.com/imrishuroy/go-workorder-sync/internal/config"
	"github.com/imrishuroy/go-workorder-sync/internal/syncer"
	"github.com/imrishuroy/go-workorder-sync/internal/workorders"
)

type rootOptions struct {
	configFile string
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Synchronize work orders between Client files and the store",
		Long: `syncctl moves work orders between the Client's JSON files and the
internal store.

The inbound pass imports every *.json file from the inbound directory and
marks the imported records unsynced. The outbound pass writes every unsynced
record to workorder_{number}.json in the outbound directory and marks it
synced once the file is on disk.

Settings come from the environment, an optional .env file and --config.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, json or toml)")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "print the run report as JSON")

	root.AddCommand(
		newPassCmd(opts, "run", "Run the inbound pass, then the outbound pass", true, true),
		newPassCmd(opts, "inbound", "Import Client files into the store", true, false),
		newPassCmd(opts, "outbound", "Export unsynced work orders to Client files", false, true),
		newHealthCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newStatusMapCmd(opts),
	)
	return root
}

func loadApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newPassCmd(opts *rootOptions, use, short string, inbound, outbound bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			report, err := a.Coordinator.RunPasses(cmd.Context(), inbound, outbound)
			if perr := printReport(cmd.OutOrStdout(), report, opts.jsonOutput); perr != nil {
				return perr
			}
			return err
		},
	}
}

func printReport(w io.Writer, r syncer.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(w, `Run %s (%s)
  Inbound:  %d read, %d valid, %d skipped, %d saved, %d errors (%.0f%%)
  Outbound: %d read, %d written, %d synced, %d errors (%.0f%%)
`,
		r.RunID, r.Duration.Round(time.Millisecond),
		r.Inbound.FilesRead, r.Inbound.FilesValid, r.Inbound.Skipped, r.Inbound.Saved, r.Inbound.Errors, r.Inbound.SuccessRate()*100,
		r.Outbound.Read, r.Outbound.Written, r.Outbound.Synced, r.Outbound.Errors, r.Outbound.SuccessRate()*100,
	)
	return err
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			if err := a.Coordinator.HealthCheck(cmd.Context()); err != nil {
				return fmt.Errorf("%s store unreachable: %w", a.Config.StoreBackend, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s store ok\n", a.Config.StoreBackend)
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run a sync whenever Client files land in the inbound directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if debounce > 0 {
				a.Config.WatchDebounce = debounce
			}
			w, err := a.Watcher()
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a sync starts (default WATCH_DEBOUNCE)")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.Config.HTTPAddr
			}

			srv := &http.Server{Addr: addr, Handler: a.Router(), ReadHeaderTimeout: 10 * time.Second}
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.Log.WithField("addr", addr).Info("serving sync API")

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
			defer cancel()
			a.Log.Info("shutting down sync API")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return a.Close(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default HTTP_ADDR)")
	return cmd
}

func newStatusMapCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status-map",
		Short: "Show how Client flags map to work order statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := workorders.NewTranslator().StatusMappingInfo()
			return printStatusMap(cmd.OutOrStdout(), m, opts.jsonOutput)
		},
	}
}

func printStatusMap(w io.Writer, m workorders.StatusMapping, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	statuses := make([]string, len(m.ValidStatuses))
	for i, s := range m.ValidStatuses {
		statuses[i] = string(s)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Statuses: %s\n", strings.Join(statuses, ", "))
	b.WriteString("Flag priority:\n")
	for i, flag := range m.Priority {
		fmt.Fprintf(&b, "  %d. %-10s -> %s\n", i+1, flag, m.FlagToStatus[flag])
	}
	fmt.Fprintf(&b, "No flag set -> %s\n", m.Default)
	_, err := io.WriteString(w, b.String())
	return err
}
