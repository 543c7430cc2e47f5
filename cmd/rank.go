package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"resume-matcher/internal/db"
	"resume-matcher/internal/helper"
	"resume-matcher/internal/matcher"
	"resume-matcher/internal/models"
	"resume-matcher/internal/parser"
)

var (
	rankJob     string
	rankJobFile string
	rankTop     int
	rankJSON    bool
)

var rankCmd = &cobra.Command{
	Use:   "rank [flags] RESUME...",
	Short: "Rank resume files against a job description",
	Long: `Rank scores every RESUME file (or every file inside a RESUME directory)
against the job description given with --job or --job-file and prints the best
matches. Files in unsupported formats are scored as empty and reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jobDescription, err := readJobDescription(ctx)
		if err != nil {
			return err
		}
		docs, err := collectDocuments(args)
		if err != nil {
			return err
		}
		if err := matcher.ValidateRequest(jobDescription, docs); err != nil {
			return fmt.Errorf("%w: pass --job or --job-file and at least one resume", err)
		}

		m, err := matcher.FromConfig(cfg)
		if err != nil {
			return err
		}
		if cfg.Database.Enabled {
			database, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.Debug)
			if err != nil {
				// History is optional; ranking goes ahead without it.
				log.Error().Err(err).Msg("Error opening history database")
			} else {
				defer database.Close()
				m.WithHistory(db.NewStore(database))
			}
		}

		result, err := m.Match(ctx, jobDescription, docs, rankTop)
		if err != nil {
			if errors.Is(err, models.ErrEmptyCorpus) {
				return fmt.Errorf("no readable text in the job description or the resumes: %w", err)
			}
			return err
		}

		if rankJSON {
			helper.PrettyPrint(cmd.OutOrStdout(), result)
			return nil
		}
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), result)
		return nil
	},
}

func init() {
	rankCmd.Flags().StringVar(&rankJob, "job", "", "job description text")
	rankCmd.Flags().StringVar(&rankJobFile, "job-file", "", "file holding the job description (any supported format)")
	rankCmd.Flags().IntVar(&rankTop, "top", 0, "number of resumes to list (default from config)")
	rankCmd.Flags().BoolVar(&rankJSON, "json", false, "print the result as JSON")
	rankCmd.MarkFlagsMutuallyExclusive("job", "job-file")
	rootCmd.AddCommand(rankCmd)
}

func readJobDescription(ctx context.Context) (string, error) {
	if rankJobFile == "" {
		return rankJob, nil
	}
	p := parser.New(parser.Options{TextEncoding: cfg.Matcher.TextEncoding})
	text, err := p.Extract(ctx, models.Document{
		ID:     rankJobFile,
		Path:   rankJobFile,
		Format: models.FormatFromFilename(rankJobFile),
	})
	if err != nil {
		return "", fmt.Errorf("reading job description: %w", err)
	}
	return text, nil
}

// collectDocuments turns file and directory arguments into documents in
// argument order. Directories contribute their regular files by name.
func collectDocuments(args []string) ([]models.Document, error) {
	var docs []models.Document
	add := func(path string) {
		docs = append(docs, models.Document{
			ID:     filepath.Base(path),
			Path:   path,
			Format: models.FormatFromFilename(path),
		})
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
				add(filepath.Join(arg, e.Name()))
			}
		}
	}
	return docs, nil
}

func printResult(out, errOut io.Writer, result *models.MatchResult) {
	fmt.Fprintln(out, "Top resumes are :")
	for i, c := range result.Ranked {
		line := fmt.Sprintf("%d. %s  %.2f", i+1, c.ID, c.Score)
		if len(c.Terms) > 0 {
			line += "  [" + strings.Join(c.Terms, ", ") + "]"
		}
		fmt.Fprintln(out, line)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(errOut, "warning: %s: %s\n", w.DocumentID, w.Message)
	}
}
