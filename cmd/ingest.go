package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ingestCmd loads work-order export workbooks into the row store.
var ingestCmd = &cobra.Command{
	Use:   "ingest <file.xlsx> [more.xlsx...]",
	Short: "Ingest work-order export workbooks",
	Long: `Reads one or more xlsx exports into the local row store. Files whose
content was ingested before are skipped, so re-running over the same exports
is harmless.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		ing := a.ingestor()
		var failed int
		for _, path := range args {
			res, err := ing.IngestFile(cmd.Context(), path)
			if err != nil {
				failed++
				fmt.Printf("%s: error: %v\n", path, err)
				continue
			}
			if res.Skipped {
				fmt.Printf("%s: already ingested\n", path)
				continue
			}
			fmt.Printf("%s: %d rows (batch %s)\n", path, res.Rows, res.BatchID)
		}
		if failed > 0 {
			return fmt.Errorf("%d file(s) failed to ingest", failed)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(ingestCmd)
}
