// Package cli 实现ragctl命令行工具
package cli

import (
	"github.com/fyerfyer/doc-rag/config"
	"github.com/fyerfyer/doc-rag/internal/app"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool

	// application 在每次命令执行前创建，执行后关闭
	application *app.App
)

var rootCmd = &cobra.Command{
	Use:   "ragctl",
	Short: "Ingest PDFs and ask questions about them",
	Long: `ragctl works directly against the document store used by the RAG server.
It can ingest PDF files, generate embeddings, and answer questions
using only the content of the ingested documents.`,
	SilenceUsage:       true,
	PersistentPreRunE:  openApp,
	PersistentPostRunE: closeApp,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: config.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at the configured level instead of warnings only")
}

// Execute 运行根命令
func Execute() error {
	return rootCmd.Execute()
}

func openApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
			logger.SetLevel(level)
		}
	}

	application, err = app.New(cmd.Context(), cfg, logger)
	return err
}

func closeApp(_ *cobra.Command, _ []string) error {
	if application == nil {
		return nil
	}
	err := application.Close()
	application = nil
	return err
}
