package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"order-sync/core/report"
	"order-sync/core/storage"
)

var syncFlags struct {
	products        []string
	force           bool
	continueOnError bool
	dryRun          bool
	maxRetries      int
	workers         int
}

// syncCmd runs one full reconciliation pass.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile stored work orders into the tracker",
	Long: `Loads ingested work-order rows, compiles them into desired item state
and reconciles each order against the remote tracker. Unchanged orders are
skipped; every outcome lands in the run report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		opts := a.cfg.Sync.Options()
		opts.ForceSync = syncFlags.force
		opts.ContinueOnError = syncFlags.continueOnError
		opts.DryRun = syncFlags.dryRun
		if cmd.Flags().Changed("max-retries") {
			opts.MaxRetries = syncFlags.maxRetries
		}
		if cmd.Flags().Changed("workers") {
			opts.WorkerCount = syncFlags.workers
		}

		svc, err := a.service(opts)
		if err != nil {
			return err
		}

		rep, err := svc.SyncAll(cmd.Context(), syncFlags.products)
		if err != nil {
			return err
		}

		if err := publishReport(cmd, a, rep); err != nil {
			a.log.Warn("report publication failed", zap.Error(err))
		}

		fmt.Println(rep.Summary())
		if rep.Failed() {
			return fmt.Errorf("%d order(s) failed", rep.Totals.Failed)
		}
		return nil
	},
}

// publishReport writes the run report locally and uploads it when enabled.
func publishReport(cmd *cobra.Command, a *app, rep *report.Report) error {
	path, err := rep.Write(a.cfg.Report.Dir)
	if err != nil {
		return err
	}
	a.log.Info("run report written", zap.String("path", path))

	if !a.cfg.Report.Upload {
		return nil
	}
	client, err := storage.NewClient(a.cfg.Storage)
	if err != nil {
		return err
	}
	if err := rep.Upload(cmd.Context(), client, a.cfg.Storage.Bucket); err != nil {
		return err
	}
	a.log.Info("run report uploaded",
		zap.String("bucket", a.cfg.Storage.Bucket),
		zap.String("object", rep.FileName()))
	return nil
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncFlags.products, "products", nil, "products to sync (default: all stored)")
	syncCmd.Flags().BoolVar(&syncFlags.force, "force", false, "bypass fingerprint and source-hash short-circuits")
	syncCmd.Flags().BoolVar(&syncFlags.continueOnError, "continue-on-error", false, "sync valid orders even when siblings fail validation")
	syncCmd.Flags().BoolVar(&syncFlags.dryRun, "dry-run", false, "diff only, no remote writes")
	syncCmd.Flags().IntVar(&syncFlags.maxRetries, "max-retries", 4, "attempts per remote write")
	syncCmd.Flags().IntVar(&syncFlags.workers, "workers", 5, "concurrent orders")
	RootCmd.AddCommand(syncCmd)
}
