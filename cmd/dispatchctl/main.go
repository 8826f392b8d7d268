package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"creative-dispatch/internal/app/server"
	"creative-dispatch/internal/config"
	"creative-dispatch/internal/dispatch"
	"creative-dispatch/internal/status"
	"creative-dispatch/internal/storage"
)

// CLI flags
var (
	adGroupFlag     string
	integrationFlag string
	fixtureFlag     string
	configDirFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "Trigger integration dispatches and inspect their status",
	Long: `dispatchctl runs the same dispatch path as the HTTP service from a shell.

With --fixture the ad groups and integrations come from a YAML file loaded
into memory; otherwise the configured storage backend is used.

Examples:
  dispatchctl dispatch --ad-group ag-1 --integration int-1
  dispatchctl summary --ad-group ag-1 --integration int-1 --fixture configs/fixture.yaml`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.SetupLogging(os.Getenv("APP_SERVER_LOG_LEVEL"), os.Getenv("APP_SERVER_LOG_FORMAT"))
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send the ad group's approved assets to an integration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		return runDispatch(cmd.Context(), cfg, st, cmd.OutOrStdout())
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the integration status summary of an ad group",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		return runSummary(cmd.Context(), st, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adGroupFlag, "ad-group", "", "Ad group id")
	rootCmd.PersistentFlags().StringVar(&integrationFlag, "integration", "", "Integration id")
	rootCmd.PersistentFlags().StringVar(&fixtureFlag, "fixture", "", "YAML fixture to load into the in-memory store")
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "configs", "Directory holding application.yaml")
	_ = rootCmd.MarkPersistentFlagRequired("ad-group")
	_ = rootCmd.MarkPersistentFlagRequired("integration")

	rootCmd.AddCommand(dispatchCmd, summaryCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func open(ctx context.Context) (config.Config, storage.Store, error) {
	cfg, err := config.LoadFrom(configDirFlag)
	if err != nil {
		return config.Config{}, nil, err
	}
	if fixtureFlag != "" {
		cfg.Storage.Backend = config.BackendMemory
		cfg.Storage.Fixture = fixtureFlag
	}
	st, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	return cfg, st, nil
}

func runDispatch(ctx context.Context, cfg config.Config, st storage.Store, out io.Writer) error {
	if err := cfg.RequireWorker(); err != nil {
		return err
	}
	integ, err := st.LoadIntegration(ctx, integrationFlag)
	if err != nil {
		return err
	}
	g, err := st.LoadAdGroup(ctx, adGroupFlag)
	if err != nil {
		return err
	}

	d := dispatch.NewDispatcher(st, dispatch.NewWorkerClient(cfg.WorkerURL(), cfg.WorkerTimeout()))
	report, err := d.Dispatch(ctx, g.ID, integ, g.Assets)
	if encErr := printJSON(out, report); encErr != nil {
		return encErr
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", report.RunID).Msg("dispatch finished with failures")
	}
	return err
}

func runSummary(ctx context.Context, st storage.Store, out io.Writer) error {
	s, err := status.NewCache(st).Summary(ctx, adGroupFlag, integrationFlag)
	if err != nil {
		return err
	}
	return printJSON(out, s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
