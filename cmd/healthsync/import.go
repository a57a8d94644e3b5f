package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newImportCmd(c *cli) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load JSON-lines samples into the local store",
		Long: `Each line is a JSON object with an "activity_type" naming a catalogued activity
and a "date" holding the sample time. The whole object becomes the record payload.
Reads stdin when --file is "-".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Samples().Import(cmd.Context(), a.Catalog(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d samples\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSON-lines file to import")
	return cmd
}
