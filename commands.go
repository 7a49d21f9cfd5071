package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"modeldash/chart"
	"modeldash/config"
	"modeldash/dataset"
	mhttp "modeldash/http"
	"modeldash/logging"
	"modeldash/monitoring"
	"modeldash/results"
)

type rootOptions struct {
	configPath string
	dir        string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "modeldash",
		Short:        "Model performance dashboard",
		Long:         "Serves a dashboard comparing training and testing accuracy of saved model results.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML config file")
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "d", "", "results directory (overrides results.dir)")

	root.AddCommand(
		newServeCmd(opts),
		newListCmd(opts),
		newPreviewCmd(opts),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the result records of the results directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			loader, err := newLoader(cfg, zap.NewNop())
			if err != nil {
				return err
			}
			snap, err := loader.Load(cfg.Results.Dir)
			if errors.Is(err, results.ErrMissingDirectory) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Directory '%s' not found. Please upload the result files.\n", cfg.Results.Dir)
				return err
			}
			if err != nil {
				return err
			}
			return printSnapshot(cmd.OutOrStdout(), snap)
		},
	}
}

func newPreviewCmd(opts *rootOptions) *cobra.Command {
	var rows, limit int

	cmd := &cobra.Command{
		Use:   "preview <file.csv>",
		Short: "Show the first rows of a CSV file with placeholder predictions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			dsOpts := datasetOptions(cfg)
			if cmd.Flags().Changed("rows") {
				dsOpts.HeadRows = rows
			}
			if cmd.Flags().Changed("limit") {
				dsOpts.RowLimit = limit
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			preview, err := dataset.BuildPreview(file, dsOpts)
			if errors.Is(err, dataset.ErrEmptyDataset) {
				fmt.Fprintln(cmd.ErrOrStderr(), "The uploaded dataset is empty.")
				return err
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d rows", preview.TotalRows)
			if preview.Truncated {
				fmt.Fprintf(out, ", first %d kept for predictions", preview.RetainedRows)
			}
			fmt.Fprintln(out)
			return printTable(out, preview.Annotated)
		},
	}
	cmd.Flags().IntVarP(&rows, "rows", "n", dataset.DefaultHeadRows, "rows to show")
	cmd.Flags().IntVar(&limit, "limit", 0, "rows kept before annotating (0 keeps all)")
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dir != "" {
		cfg.Results.Dir = opts.dir
	}
	return cfg, nil
}

func newLoader(cfg *config.Config, logger *zap.Logger) (*results.Loader, error) {
	return results.NewLoader(results.LoaderOptions{
		Extensions: cfg.Results.Extensions,
		Strict:     cfg.Results.Strict,
	}, logger)
}

func datasetOptions(cfg *config.Config) dataset.Options {
	return dataset.Options{
		Encoding: cfg.Dataset.Encoding,
		RowLimit: cfg.Dataset.RowLimit,
		HeadRows: cfg.Dataset.HeadRows,
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dsOpts := datasetOptions(cfg)
	if err := dsOpts.Validate(); err != nil {
		return err
	}

	loader, err := newLoader(cfg, logger)
	if err != nil {
		return err
	}
	metrics := monitoring.NewMetrics()
	store, err := results.NewStore(loader, cfg.Results.CacheSize, metrics, logger)
	if err != nil {
		return err
	}

	hub := monitoring.NewHub(metrics, logger)
	go hub.Run()
	defer hub.Stop()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Results.Watch {
		watcher, err := results.NewWatcher(store, cfg.Results.Dir, hub.NotifyResultsChanged, logger)
		if err != nil {
			// A missing directory is reported on the page; polling by fingerprint still applies.
			logger.Warn("results watcher disabled", zap.String("dir", cfg.Results.Dir), zap.Error(err))
		} else {
			defer watcher.Close()
			go func() {
				if err := watcher.Run(ctx); err != nil {
					logger.Error("results watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	app := &mhttp.App{
		Store:      store,
		ResultsDir: cfg.Results.Dir,
		Dataset:    dsOpts,
		Hub:        hub,
		Metrics:    metrics,
		Logger:     logger,
	}
	server := mhttp.NewServer(mhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxUploadBytes: cfg.Http.MaxUploadBytes,
	}, app, logger)

	logger.Info("dashboard configured",
		zap.String("addr", server.Addr()),
		zap.String("results_dir", cfg.Results.Dir),
		zap.Bool("watch", cfg.Results.Watch))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := server.Stop(context.Background()); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("exiting")
	return nil
}

func printSnapshot(w io.Writer, snap *results.Snapshot) error {
	if snap.Len() == 0 {
		fmt.Fprintf(w, "No result files found in '%s'.\n", snap.Dir)
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tMODEL\tTRAINING\tTESTING\tDIFFERENCE")
		for _, key := range snap.Keys() {
			rec, err := snap.Get(key)
			if err != nil {
				return err
			}
			c := chart.NewComparison(rec.Model, rec.TrainingAccuracy, rec.TestingAccuracy)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key, rec.Model,
				c.Bars[0].ValueLabel, c.Bars[1].ValueLabel, strings.TrimPrefix(c.DifferenceLabel, "Difference: "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, s := range snap.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.File, s.Reason)
	}
	return nil
}

func printTable(w io.Writer, t *dataset.Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\t"+strings.Join(t.Columns, "\t"))
	for i, row := range t.Rows {
		fmt.Fprintf(tw, "%d\t%s\n", i, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
