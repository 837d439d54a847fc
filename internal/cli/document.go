package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fyerfyer/doc-rag/internal/models"
	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/spf13/cobra"
)

var (
	ingestEmbed bool
	listJSON    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.pdf...]",
	Short: "Ingest PDF files",
	Long: `Extracts the text of each PDF, splits it into overlapping chunks and
stores the chunks without embeddings. Use --embed to generate embeddings
right after ingestion.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestEmbed, "embed", false, "generate embeddings after ingestion")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output documents as JSON")

	rootCmd.AddCommand(ingestCmd, listCmd, deleteCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		doc, err := ingestFile(cmd, path)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		cmd.Printf("Ingested %s (%s): %d pages, %d chunks\n", doc.Title, doc.ID, doc.PageCount, len(doc.Chunks))

		if ingestEmbed {
			result, err := application.Embedding.Generate(cmd.Context(), doc.ID)
			if err != nil {
				return fmt.Errorf("embed %s: %w", doc.ID, err)
			}
			printEmbedResult(cmd, result)
		}
	}
	return nil
}

func ingestFile(cmd *cobra.Command, path string) (*models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return application.Ingestion.Ingest(cmd.Context(), services.UploadInput{
		FileName: info.Name(),
		Size:     info.Size(),
		Reader:   f,
	})
}

type documentSummary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	FileName   string `json:"filename"`
	PageCount  int    `json:"pageCount"`
	ChunkCount int    `json:"chunkCount"`
	Embedded   bool   `json:"embeddingsGenerated"`
}

func runList(cmd *cobra.Command, _ []string) error {
	docs, err := application.Ingestion.List(cmd.Context())
	if err != nil {
		return err
	}

	summaries := make([]documentSummary, len(docs))
	for i := range docs {
		summaries[i] = documentSummary{
			ID:         docs[i].ID,
			Title:      docs[i].Title,
			FileName:   docs[i].FileName,
			PageCount:  docs[i].PageCount,
			ChunkCount: len(docs[i].Chunks),
			Embedded:   docs[i].EmbeddingsGenerated(),
		}
	}

	if listJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for _, s := range summaries {
		state := "not embedded"
		if s.Embedded {
			state = "embedded"
		}
		cmd.Printf("  %s  %s (%d pages, %d chunks, %s)\n", s.ID, s.Title, s.PageCount, s.ChunkCount, state)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := application.Ingestion.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
