package cli

import (
	"github.com/spf13/cobra"

	"price-watch/internal/app"
)

var (
	importQuery  string
	importFile   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import store,price,timestamp CSV rows into a query's history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Import(cmd.Context(), app.ImportOptions{
			Query:  importQuery,
			Path:   importFile,
			DryRun: importDryRun,
		})
	},
}

func init() {
	importCmd.Flags().StringVarP(&importQuery, "query", "q", "", "Product query the rows belong to")
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse the file without writing to storage")
	_ = importCmd.MarkFlagRequired("query")
	_ = importCmd.MarkFlagRequired("file")
}
