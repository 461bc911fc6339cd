package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// previewCmd compiles and validates a product without writing anything.
var previewCmd = &cobra.Command{
	Use:   "preview <product>",
	Short: "Show the compiled item plans for a product",
	Long: `Compiles the stored rows of one product into desired item state and
prints the validation outcome per order. The tracker is only read for its
custom-field map; nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		svc, err := a.service(a.cfg.Sync.Options())
		if err != nil {
			return err
		}

		orders, err := svc.Preview(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(orders, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(previewCmd)
}
