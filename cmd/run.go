package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stbl-strategies/catalog-cli/internal/pipeline"
)

var (
	runURL             string
	runLimit           int
	runSkipDownload    bool
	runQAHold          bool
	resumeSkipDownload bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire and merge a single presentation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		opts := pipeline.Options{
			Limit:        runLimit,
			SkipDownload: runSkipDownload,
			QAHold:       runQAHold,
		}
		job, err := env.Pipeline.Run(ctx, runURL, opts)
		if err != nil {
			if job != nil {
				printJSON(job)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("acquisition complete",
			zap.String("job", job.ID),
			zap.String("status", string(job.Status)),
			zap.String("output", job.OutputPath),
			zap.Int("errors", len(job.Errors)),
		)
		return printJSON(job)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume an interrupted job from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Pipeline.Resume(ctx, args[0], pipeline.Options{SkipDownload: resumeSkipDownload})
		if err != nil {
			return eris.Wrap(err, "pipeline resume")
		}
		return printJSON(job)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "presentation share URL (required)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most N products (0 = all)")
	runCmd.Flags().BoolVar(&runSkipDownload, "skip-download", false, "reuse stored PDFs instead of driving the portal")
	runCmd.Flags().BoolVar(&runQAHold, "qa-hold", false, "stop at awaiting_qa for review instead of completing")
	_ = runCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(runCmd)

	resumeCmd.Flags().BoolVar(&resumeSkipDownload, "skip-download", false, "reuse stored PDFs instead of driving the portal")
	rootCmd.AddCommand(resumeCmd)
}
