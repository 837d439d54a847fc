package cli

import (
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/spf13/cobra"
)

var embedAsync bool

var embedCmd = &cobra.Command{
	Use:   "embed [document-id]",
	Short: "Generate embeddings for a document",
	Long: `Embeds every chunk of the document in one pass. Embeddings are generated
once per document; delete and re-ingest the document to regenerate them.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

var taskCmd = &cobra.Command{
	Use:   "task [task-id]",
	Short: "Show the status of an asynchronous embedding task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

func init() {
	embedCmd.Flags().BoolVar(&embedAsync, "async", false, "enqueue the job instead of running it now")
	rootCmd.AddCommand(embedCmd, taskCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	if embedAsync {
		taskID, err := application.Embedding.Enqueue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		cmd.Printf("Enqueued task %s\n", taskID)
		return nil
	}

	result, err := application.Embedding.Generate(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printEmbedResult(cmd, result)
	return nil
}

func printEmbedResult(cmd *cobra.Command, result *services.EmbedResult) {
	cmd.Printf("Embedded %d chunks of %s (dimension %d)\n", result.ChunksProcessed, result.Title, result.Dimensions)
}

func runTask(cmd *cobra.Command, args []string) error {
	task, err := application.Embedding.GetTask(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	cmd.Printf("Task %s: %s (attempts: %d)\n", task.ID, task.Status, task.Attempts)
	if task.Error != "" {
		cmd.Printf("  error: %s\n", task.Error)
	}
	if len(task.Result) > 0 {
		cmd.Printf("  result: %s\n", string(task.Result))
	}
	return nil
}
