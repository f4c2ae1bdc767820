package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shaymcgreal/datatransformer/app/models"
	"github.com/shaymcgreal/datatransformer/helpers/utils"
	"github.com/shaymcgreal/datatransformer/internal/pipeline"
	"github.com/shaymcgreal/datatransformer/internal/report"
	"github.com/shaymcgreal/datatransformer/internal/search"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var output string
	var summary bool
	var publish bool
	var expandStreets bool
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "check <input.csv>",
		Short: "Score a CSV export and flag probable duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if output == "" {
				output = report.ProcessedPath(input)
			}

			cfg, err := ctx.linkageConfig()
			if err != nil {
				return err
			}

			opts := []pipeline.Option{pipeline.WithStreetExpansion(expandStreets)}
			var bar *stageProgress
			if !noProgress && isTerminal(cmd.ErrOrStderr()) {
				bar = newStageProgress(cmd.ErrOrStderr())
				opts = append(opts, pipeline.WithProgress(bar.Update))
			}
			p, err := pipeline.New(cfg, ctx.logger, opts...)
			if err != nil {
				return err
			}

			in, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			ctx.logger.Info("Checking dataset",
				zap.String("input", input),
				zap.String("output", output),
				zap.String("profile", cfg.Profile))
			rep, err := p.Run(cmd.Context(), bufio.NewReader(in))
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}

			if err := writeReport(output, rep); err != nil {
				return err
			}
			ctx.logger.Info("Report written", zap.String("output", output), zap.Int("rows", len(rep.Rows)))

			if publish {
				if err := publishReport(cmd, ctx, input, rep); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if summary {
				fmt.Fprintln(out, renderSummary(rep.Summary))
				if len(rep.Summary.GroupSizes) > 0 {
					fmt.Fprintln(out, renderGroupSizes(rep.Summary.GroupSizes))
				}
			}
			fmt.Fprintf(out, "Processed %d rows in %s -> %s\n", rep.Summary.Rows,
				(time.Duration(rep.Summary.ElapsedMS) * time.Millisecond).String(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV path (default <input>_processed.csv)")
	cmd.Flags().BoolVar(&summary, "summary", true, "Print the run summary tables")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish annotated rows to Meilisearch")
	cmd.Flags().BoolVar(&expandStreets, "expand-streets", false, "Expand street fields with libpostal when built with it")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// writeReport writes to a temp file in the target directory and renames
// it, so a failed run never leaves a truncated report behind.
func writeReport(path string, rep *models.Report) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checker-*.csv")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := report.WriteCSV(w, rep); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("set output mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}

func publishReport(cmd *cobra.Command, ctx *commandContext, input string, rep *models.Report) error {
	publisher, err := search.NewPublisher(search.PublisherConfig{
		Host:      ctx.v.GetString("meilisearch.url"),
		APIKey:    ctx.v.GetString("meilisearch.master_key"),
		IndexName: ctx.v.GetString("meilisearch.index"),
	}, ctx.logger)
	if err != nil {
		return err
	}
	if err := publisher.EnsureIndex(); err != nil {
		return err
	}
	// a fresh suffix per run keeps earlier publications of the same file
	dataset := filepath.Base(input) + "-" + utils.GenerateShortID()
	n, err := publisher.Publish(cmd.Context(), dataset, rep)
	if err != nil {
		return fmt.Errorf("publish %s: %w", dataset, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Published %d rows as dataset %q\n", n, dataset)
	return nil
}
