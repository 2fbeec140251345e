package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/config"
	"github.com/example/go-fnbtagger/internal/metrics"
	"github.com/example/go-fnbtagger/internal/output"
	"github.com/example/go-fnbtagger/internal/pipeline"
	"github.com/example/go-fnbtagger/internal/tfrecord"
	"github.com/example/go-fnbtagger/internal/vocab"
	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newGenerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Split annotated lines into train, dev and test record files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			stats, err := runGenerate(ctx, cfg)
			if err != nil {
				return err
			}

			printSummary(cmd.OutOrStdout(), stats)

			return nil
		},
	}
}

func outputLayout(cfg config.Config) output.Layout {
	return output.Layout{
		Dir:         cfg.Paths.OutputDir,
		Train:       cfg.Paths.Train,
		Dev:         cfg.Paths.Dev,
		Test:        cfg.Paths.Test,
		TokensVocab: cfg.Paths.TokensVocab,
		LabelsVocab: cfg.Paths.LabelsVocab,
	}
}

// pipelineOptions maps a validated config onto pipeline options.
func pipelineOptions(cfg config.Config) (pipeline.Options, error) {
	fallback, err := vocab.ParseFallback(cfg.Vocab.Fallback)
	if err != nil {
		return pipeline.Options{}, err
	}

	policy, err := annotation.ParsePolicy(cfg.Input.Malformed)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		TrainFraction: cfg.Split.TrainFraction,
		TestFraction:  cfg.Split.TestFraction,
		DevFraction:   cfg.Split.DevFraction,
		DevComplement: cfg.Split.DevComplement,
		UnknownToken:  cfg.Vocab.UnknownToken,
		UnknownLabel:  cfg.Vocab.UnknownLabel,
		Fallback:      fallback,
		Policy:        policy,
		MaxLineBytes:  cfg.Input.MaxLineBytes,
	}, nil
}

func runGenerate(ctx context.Context, cfg config.Config) (pipeline.Stats, error) {
	if err := cfg.Validate(); err != nil {
		return pipeline.Stats{}, err
	}

	compression, err := tfrecord.ParseCompression(cfg.Output.Compression)
	if err != nil {
		return pipeline.Stats{}, err
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		return pipeline.Stats{}, err
	}

	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)
	recorder := metrics.New(runID)

	opts.Logger = logger
	opts.Metrics = recorder

	gen, err := pipeline.New(opts)
	if err != nil {
		return pipeline.Stats{}, err
	}

	in, err := os.Open(cfg.Paths.Input)
	if err != nil {
		return pipeline.Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	layout := outputLayout(cfg)

	recs, err := output.CreateRecords(layout, compression)
	if err != nil {
		return pipeline.Stats{}, err
	}

	logger.Info("generate started",
		"input", cfg.Paths.Input,
		"output_dir", cfg.Paths.OutputDir,
		"compression", compression,
	)

	stats, err := gen.Run(ctx, in, recs.Sinks())
	if err = errors.Join(err, recs.Close()); err != nil {
		return stats, err
	}

	if err := output.WriteVocabularies(layout, gen); err != nil {
		return stats, err
	}

	if cfg.Paths.MetricsFile != "" {
		if err := recorder.WriteFile(cfg.Paths.MetricsFile); err != nil {
			return stats, err
		}
	}

	logger.Info("generate finished",
		"lines", stats.Lines,
		"blank", stats.Blank,
		"skipped", stats.Skipped,
		"train", stats.Train,
		"dev", stats.Dev,
		"test", stats.Test,
		"token_vocab", stats.TokenVocab,
		"label_vocab", stats.LabelVocab,
	)

	return stats, nil
}

// printSummary writes a table on a terminal and a single line otherwise.
func printSummary(w io.Writer, s pipeline.Stats) {
	if !isTerminal(w) {
		_, _ = fmt.Fprintf(w, "Done. %d train, %d test, %d dev\n", s.Train, s.Test, s.Dev)
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"BUCKET", "EXAMPLES"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("\t")

	table.AppendBulk([][]string{
		{"train", strconv.Itoa(s.Train)},
		{"dev", strconv.Itoa(s.Dev)},
		{"test", strconv.Itoa(s.Test)},
		{"skipped", strconv.Itoa(s.Skipped)},
		{"token vocab", strconv.Itoa(s.TokenVocab)},
		{"label vocab", strconv.Itoa(s.LabelVocab)},
	})
	table.Render()
}
