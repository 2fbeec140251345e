package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-fnbtagger/internal/example"
	"github.com/example/go-fnbtagger/internal/tfrecord"
	"github.com/example/go-fnbtagger/internal/vocab"
	"github.com/spf13/cobra"
)

type inspectOptions struct {
	Path        string
	Compression tfrecord.Compression
	Limit       int
	// Tokens and Labels, when set, add an id line per record.
	Tokens *vocab.Indexer
	Labels *vocab.Indexer
}

func newInspectCmd() *cobra.Command {
	var (
		limit     int
		showVocab bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the examples stored in a record file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			compression, err := tfrecord.ParseCompression(cfg.Output.Compression)
			if err != nil {
				return err
			}

			opts := inspectOptions{
				Path:        args[0],
				Compression: compression,
				Limit:       limit,
			}

			if showVocab {
				fallback, err := vocab.ParseFallback(cfg.Vocab.Fallback)
				if err != nil {
					return err
				}

				layout := outputLayout(cfg)
				if opts.Tokens, err = readVocab(layout.Resolve(layout.TokensVocab), fallback); err != nil {
					return err
				}
				if opts.Labels, err = readVocab(layout.Resolve(layout.LabelsVocab), fallback); err != nil {
					return err
				}
			}

			return runInspect(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum records to print (0 prints all)")
	cmd.Flags().BoolVar(&showVocab, "vocab", false, "Also print token and label ids from the configured vocabulary files")

	return cmd
}

func readVocab(path string, fallback vocab.Fallback) (*vocab.Indexer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	ix, err := vocab.Read(f, vocab.WithFallback(fallback))
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}

	return ix, nil
}

func runInspect(w io.Writer, opts inspectOptions) error {
	r, err := tfrecord.Open(opts.Path, opts.Compression)
	if err != nil {
		return err
	}
	defer r.Close()

	for n := 1; opts.Limit <= 0 || n <= opts.Limit; n++ {
		data, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}

		ex, err := example.Parse(data)
		if err != nil {
			return fmt.Errorf("record %d: %w", n, err)
		}

		pairs := make([]string, len(ex.Tokens))
		for i := range ex.Tokens {
			pairs[i] = ex.Tokens[i] + "/" + ex.Labels[i]
		}
		_, _ = fmt.Fprintf(w, "#%d length=%d\n  %s\n", n, ex.Length, strings.Join(pairs, " "))

		if opts.Tokens != nil && opts.Labels != nil {
			_, _ = fmt.Fprintf(w, "  tokens=%v labels=%v\n",
				opts.Tokens.LookupIDs(ex.Tokens), opts.Labels.LookupIDs(ex.Labels))
		}
	}

	return nil
}
