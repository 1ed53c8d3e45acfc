package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/bus"
	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/evaluation"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate FILE...",
		Short: "Evaluate the fairness of one or more dataset files",
		Long: `Evaluate reads YAML or JSON datasets and prints one fairness report per file.

Several files are evaluated concurrently; reports keep the argument order.
With --publish every report is also announced on the configured event bus.

Exit status is 2 when a dataset is invalid and 1 on any other failure.`,
		Example: `  fairrank evaluate examples/hiring.yaml
  fairrank evaluate --format json a.yaml b.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runEvaluate,
	}

	cmd.Flags().Bool("publish", false, "publish reports on the configured event bus")

	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormatFlag(cmd)
	if err != nil {
		return err
	}

	datasets := make([]*dataset.Dataset, len(args))
	for i, path := range args {
		ds, err := dataset.Load(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		datasets[i] = ds
	}

	var eventBus bus.Bus
	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		eventBus, err = bus.NewBus(cfg.Bus, log)
		if err != nil {
			return fmt.Errorf("failed to create event bus: %w", err)
		}
		defer eventBus.Close()
	}

	svc := evaluation.NewService(nil, eventBus, nil, log, cfg.Evaluation)

	if len(datasets) == 1 {
		rep, err := svc.Evaluate(cmd.Context(), datasets[0])
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return writeReport(cmd.OutOrStdout(), format, rep)
	}

	reports, err := svc.EvaluateBatch(cmd.Context(), datasets)
	if err != nil {
		var batchErr *evaluation.BatchError
		if errors.As(err, &batchErr) {
			return fmt.Errorf("%s: %w", args[batchErr.Index], batchErr)
		}
		return err
	}
	return writeReports(cmd.OutOrStdout(), format, reports)
}
