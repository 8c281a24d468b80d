package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Load and summarize job descriptions",
}

var jobsLoadCmd = &cobra.Command{
	Use:   "load <jobs.csv>",
	Short: "Load job descriptions from a title,description CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadJobs(cmd.Context(), args[0])
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List job descriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listJobs(cmd.Context())
	},
}

var jobsSummarizeCmd = &cobra.Command{
	Use:   "summarize <job-id>...",
	Short: "Summarize job descriptions into structured requirements",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return summarizeJobs(cmd.Context(), ids)
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsLoadCmd, jobsListCmd, jobsSummarizeCmd)
}

func loadJobs(parent context.Context, path string) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{})
	if err != nil {
		return err
	}
	defer a.close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	jobs, err := a.jobs.LoadFromCSV(ctx, f)
	if err != nil {
		return err
	}
	a.logger.Info("job descriptions loaded", zap.String("file", path), zap.Int("count", len(jobs)))
	return report(a.logger, "jobs", jobs)
}

func listJobs(parent context.Context) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{})
	if err != nil {
		return err
	}
	defer a.close()

	jobs, err := a.store.ListJobs(ctx)
	if err != nil {
		return err
	}
	return report(a.logger, "jobs", jobs)
}

// summarizeJobs keeps going after a failed job and returns all failures.
func summarizeJobs(parent context.Context, ids []int64) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{generator: true})
	if err != nil {
		return err
	}
	defer a.close()

	var errs error
	for _, id := range ids {
		job, err := a.jobs.Summarize(ctx, id)
		if err != nil {
			a.logger.Error("summarization failed", zap.Int64(logger.FieldJobID, id), zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}
		a.logger.Info("job summarized",
			zap.Int64(logger.FieldJobID, job.ID),
			zap.String("title", job.Title),
			zap.String("summary", logger.TruncateForLog(job.StructuredSummaryJSON, a.config.AI.MaxLogLength)),
		)
	}
	return errs
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
