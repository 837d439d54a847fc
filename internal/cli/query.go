package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyerfyer/doc-rag/internal/services"
	"github.com/spf13/cobra"
)

var (
	queryTopK      int
	queryDocuments []string
	queryJSON      bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from the ingested documents",
	Long: `Retrieves the chunks most similar to the question and asks the language
model to answer using only that context.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the chunks most similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, searchCmd} {
		c.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
		c.Flags().StringSliceVarP(&queryDocuments, "doc", "d", nil, "restrict retrieval to these document IDs")
		c.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	}
	rootCmd.AddCommand(queryCmd, searchCmd)
}

func retrieveOptions() services.RetrieveOptions {
	return services.RetrieveOptions{TopK: queryTopK, DocumentIDs: queryDocuments}
}

func runQuery(cmd *cobra.Command, args []string) error {
	answer, err := application.Query.Answer(cmd.Context(), args[0], retrieveOptions())
	if err != nil {
		return err
	}

	if queryJSON {
		return printJSON(cmd, answer)
	}

	cmd.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		printMatches(cmd, answer.Sources)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	matches, err := application.Retrieval.Retrieve(cmd.Context(), args[0], retrieveOptions())
	if err != nil {
		return err
	}

	if queryJSON {
		return printJSON(cmd, matches)
	}
	if len(matches) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	printMatches(cmd, matches)
	return nil
}

func printMatches(cmd *cobra.Command, matches []services.Match) {
	for i, m := range matches {
		cmd.Printf("  [%d] %s, page %d (%.3f)\n", i+1, m.DocumentTitle, m.PageNumber, m.Score)
		cmd.Printf("      %s\n", snippet(m.Content, 160))
	}
}

// snippet 截取单行摘要
func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
