package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"resume-matcher/internal/config"
	"resume-matcher/internal/helper"
)

const defaultConfigPath = "./configs/config.yaml"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "resume-matcher",
	Short: "Rank resumes against a job description",
	Long: `resume-matcher extracts text from resumes (pdf, docx, txt, markdown, html,
spreadsheets, slides), weighs terms with TF-IDF over the job description and
the resumes together, and lists the closest resumes by cosine similarity.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := helper.SetupLogger(loaded.Log.Level, loaded.Log.Pretty); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
