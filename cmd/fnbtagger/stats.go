package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/example/go-fnbtagger/internal/example"
	"github.com/example/go-fnbtagger/internal/tfrecord"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// fileStats summarizes one record file.
type fileStats struct {
	Path    string
	Records int
	Tokens  int
	Longest int
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [files...]",
		Short: "Count records and tokens in record files",
		Long:  "Count records and tokens in record files. Without arguments the configured train, dev and test files are read.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			compression, err := tfrecord.ParseCompression(cfg.Output.Compression)
			if err != nil {
				return err
			}

			paths := args
			if len(paths) == 0 {
				train, dev, test := outputLayout(cfg).RecordPaths()
				paths = []string{train, dev, test}
			}

			results, err := collectStats(cmd.Context(), paths, compression)
			if err != nil {
				return err
			}

			printStats(cmd.OutOrStdout(), results)

			return nil
		},
	}
}

// collectStats scans every file concurrently. Results keep the order of
// paths.
func collectStats(ctx context.Context, paths []string, c tfrecord.Compression) ([]fileStats, error) {
	results := make([]fileStats, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			s, err := scanFile(ctx, path, c)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = s

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func scanFile(ctx context.Context, path string, c tfrecord.Compression) (fileStats, error) {
	s := fileStats{Path: path}

	r, err := tfrecord.Open(path, c)
	if err != nil {
		return s, err
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		data, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, fmt.Errorf("record %d: %w", s.Records+1, err)
		}

		ex, err := example.Parse(data)
		if err != nil {
			return s, fmt.Errorf("record %d: %w", s.Records+1, err)
		}

		s.Records++
		s.Tokens += len(ex.Tokens)
		s.Longest = max(s.Longest, len(ex.Tokens))
	}
}

func printStats(w io.Writer, results []fileStats) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"FILE", "RECORDS", "TOKENS", "LONGEST"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("\t")

	var data [][]string
	for _, s := range results {
		data = append(data, []string{
			s.Path,
			strconv.Itoa(s.Records),
			strconv.Itoa(s.Tokens),
			strconv.Itoa(s.Longest),
		})
	}

	table.AppendBulk(data)
	table.Render()
}
