package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errDeclined = errors.New("declined by operator")

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Match candidates, build the shortlist and send interview invitations",
}

var workflowMatchCmd = &cobra.Command{
	Use:   "match <job-id> <candidate-id>",
	Short: "Score one candidate against one job",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return matchPair(cmd.Context(), ids[0], ids[1])
	},
}

var workflowMatchAllCmd = &cobra.Command{
	Use:   "match-all <job-id>",
	Short: "Score every parsed candidate against a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return matchAll(cmd.Context(), ids[0])
	},
}

var workflowShortlistCmd = &cobra.Command{
	Use:   "shortlist <job-id>",
	Short: "Shortlist matched candidates scoring at least the threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		var threshold *float64
		if cmd.Flags().Changed("threshold") {
			v, _ := cmd.Flags().GetFloat64("threshold")
			threshold = &v
		}
		return shortlist(cmd.Context(), ids[0], threshold)
	},
}

var workflowInviteCmd = &cobra.Command{
	Use:   "invite <job-id>",
	Short: "Draft and send interview invitations to shortlisted candidates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		return invite(cmd.Context(), ids[0], yes)
	},
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowMatchCmd, workflowMatchAllCmd, workflowShortlistCmd, workflowInviteCmd)

	workflowShortlistCmd.Flags().Float64P("threshold", "t", 0, "minimum match score (default is shortlisting.default-threshold)")
	workflowInviteCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before sending emails")
}

func matchPair(parent context.Context, jobID, candidateID int64) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{generator: true})
	if err != nil {
		return err
	}
	defer a.close()

	app, err := a.matcher.Match(ctx, jobID, candidateID)
	if err != nil {
		return err
	}
	return report(a.logger, "application", app)
}

func matchAll(parent context.Context, jobID int64) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{generator: true})
	if err != nil {
		return err
	}
	defer a.close()

	out, err := a.matcher.MatchAll(ctx, jobID)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int64(logger.FieldJobID, jobID),
		zap.String("run_id", out.RunID.String()),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	}
	if out.Err != nil {
		a.logger.Warn("batch matching finished with failures", append(fields, zap.Error(out.Err))...)
		return nil
	}
	a.logger.Info("batch matching finished", fields...)
	return nil
}

func shortlist(parent context.Context, jobID int64, threshold *float64) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{})
	if err != nil {
		return err
	}
	defer a.close()

	apps, err := a.matcher.Shortlist(ctx, jobID, threshold)
	if err != nil {
		return err
	}
	a.logger.Info("shortlisting completed", zap.Int64(logger.FieldJobID, jobID), zap.Int("count", len(apps)))
	return report(a.logger, "shortlist", apps)
}

func invite(parent context.Context, jobID int64, yes bool) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{generator: true, mail: true})
	if err != nil {
		return err
	}
	defer a.close()

	pending, err := a.store.ListApplications(ctx, store.ApplicationFilter{JobID: jobID, Status: model.ApplicationShortlisted})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		a.logger.Info("exiting", zap.String("reason", "no shortlisted applications"), zap.Int64(logger.FieldJobID, jobID))
		return nil
	}

	if !yes {
		if err := confirm(fmt.Sprintf("Send %d interview invitations?", len(pending))); err != nil {
			a.logger.Info("exiting", zap.String("reason", err.Error()))
			return nil
		}
	}

	res, err := a.dispatcher.SendInvitations(ctx, jobID)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int64(logger.FieldJobID, jobID),
		zap.Int("sent", len(res.Sent)),
		zap.Int("failed", res.Failed),
	}
	if res.Err != nil {
		a.logger.Warn("invitations finished with failures", append(fields, zap.Error(res.Err))...)
		return nil
	}
	a.logger.Info("invitations sent", fields...)
	return nil
}

func confirm(label string) error {
	prompt := promptui.Select{
		Label: label,
		Items: []string{PromptYes, PromptNo},
	}
	_, answer, err := prompt.Run()
	if err != nil {
		return err
	}
	if answer != PromptYes {
		return errDeclined
	}
	return nil
}
