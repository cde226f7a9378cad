package cli

import (
	"github.com/spf13/cobra"

	"price-watch/internal/app"
)

var (
	analyzeQuery string
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print price analytics for a product query",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), app.AnalyzeOptions{
			Query: analyzeQuery,
			JSON:  analyzeJSON,
		})
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeQuery, "query", "q", "", "Product query")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the report as JSON")
	_ = analyzeCmd.MarkFlagRequired("query")
}
