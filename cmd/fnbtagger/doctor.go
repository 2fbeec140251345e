package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-fnbtagger/internal/annotation"
	"github.com/example/go-fnbtagger/internal/doctor"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var sample int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run input, output and configuration checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			// An invalid policy is reported by Validate below.
			policy, _ := annotation.ParsePolicy(cfg.Input.Malformed)

			result := doctor.Run(doctor.Config{
				InputPath:    cfg.Paths.Input,
				SampleLines:  sample,
				Policy:       policy,
				MaxLineBytes: cfg.Input.MaxLineBytes,
				OutputDir:    cfg.Paths.OutputDir,
				Splits: []doctor.SplitCheck{
					{Name: "train/test", A: cfg.Split.TrainFraction, B: cfg.Split.TestFraction},
					{Name: "dev", A: cfg.Split.DevFraction, B: cfg.Split.DevComplement},
				},
				Compression: cfg.Output.Compression,
			}, out)

			if err := cfg.Validate(); err != nil {
				result.AddFailure(err.Error())
				_, _ = fmt.Fprintf(out, "%s config: %v\n", doctor.FailMark, err)
			} else {
				_, _ = fmt.Fprintf(out, "%s config: ok\n", doctor.PassMark)
			}

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().IntVar(&sample, "sample", 100, "Leading input lines to parse under the malformed-line policy (0 disables)")

	return cmd
}
