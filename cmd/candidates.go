package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/model"
	"github.com/spigell/cv-screener/internal/store"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Upload and inspect candidate resumes",
}

var candidatesUploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>...",
	Short: "Upload resumes and wait until they are parsed",
	Long:  "Upload resumes named like C123.pdf. The file name prefix identifies the candidate; uploading it again replaces the previous resume.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return uploadCandidates(cmd.Context(), args)
	},
}

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, _ := cmd.Flags().GetString("status")
		return listCandidates(cmd.Context(), model.CandidateStatus(status))
	},
}

func init() {
	rootCmd.AddCommand(candidatesCmd)
	candidatesCmd.AddCommand(candidatesUploadCmd, candidatesListCmd)

	candidatesListCmd.Flags().StringP("status", "s", "", "only candidates in this status (UPLOADED, PARSING, PARSED, ERROR_PARSING)")
}

func uploadCandidates(parent context.Context, files []string) error {
	ctx := contextOrBackground(parent)

	a, err := newApplication(ctx, wiring{generator: true})
	if err != nil {
		return err
	}
	defer a.close()

	a.pool.Start(ctx)

	ids := make([]int64, 0, len(files))
	failed := 0
	for _, name := range files {
		cand, err := uploadFile(ctx, a, name)
		if err != nil {
			failed++
			a.logger.Error("upload failed", zap.String("file", name), zap.Error(err))
			continue
		}
		ids = append(ids, cand.ID)
		a.logger.Info("resume accepted", append(logger.Candidate(cand.ID, cand.FileID), zap.String("file", name))...)
	}

	a.logger.Info("waiting for parsing to finish", zap.Int("queued", len(ids)))
	a.pool.Wait()

	for _, id := range ids {
		cand, err := a.store.GetCandidate(ctx, id)
		if err != nil {
			return err
		}
		fields := append(logger.Candidate(cand.ID, cand.FileID), zap.String(logger.FieldStatus, string(cand.Status)))
		if cand.Status == model.CandidateParsed {
			a.logger.Info("resume parsed", append(fields, zap.String("name", cand.Name), zap.String("email", cand.Email))...)
			continue
		}
		failed++
		a.logger.Warn("resume not parsed", append(fields, zap.String("diagnostic", logger.TruncateForLog(cand.ExtractedCVJSON, a.config.AI.MaxLogLength)))...)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d resumes failed", failed, len(files))
	}
	return nil
}

func uploadFile(ctx context.Context, a *application, name string) (*model.Candidate, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return a.pipeline.Submit(ctx, filepath.Base(name), f)
}

func listCandidates(parent context.Context, status model.CandidateStatus) error {
	ctx := contextOrBackground(parent)
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown candidate status %q", status)
	}

	a, err := newApplication(ctx, wiring{})
	if err != nil {
		return err
	}
	defer a.close()

	candidates, err := a.store.ListCandidates(ctx, store.CandidateFilter{Status: status})
	if err != nil {
		return err
	}
	return report(a.logger, "candidates", candidates)
}
