package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ricesearch/fairrank/internal/dataset"
	"github.com/ricesearch/fairrank/internal/evaluation"
	"github.com/ricesearch/fairrank/internal/watch"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch FILE...",
		Short: "Re-evaluate dataset files whenever they change",
		Long: `Watch evaluates each file once, then again every time it is saved.
Invalid datasets are reported and watching continues. Stop with Ctrl-C.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before re-evaluating")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	format, err := outputFormatFlag(cmd)
	if err != nil {
		return err
	}
	debounce, _ := cmd.Flags().GetDuration("debounce")

	svc := evaluation.NewService(nil, nil, nil, log, cfg.Evaluation)
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	evaluate := func(ctx context.Context, path string) {
		ds, err := dataset.Load(path)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			return
		}
		r, err := svc.Evaluate(ctx, ds)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			return
		}
		if err := writeReport(out, format, r); err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w, err := watch.New(watch.Config{
		Paths:    args,
		Debounce: debounce,
		OnChange: evaluate,
		Log:      log,
	})
	if err != nil {
		return err
	}

	for _, path := range args {
		evaluate(ctx, path)
	}
	return w.Run(ctx)
}
