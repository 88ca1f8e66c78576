package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RaiderRus/moodTrack/internal/tags"
)

func newCatalogCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Validate and print a tag catalog (embedded default unless --file is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := tags.Load(file)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tCOLOR\tHIDDEN")
			for _, t := range c.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", t.ID, t.Name, t.Category, t.Color, t.Hidden)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tags, sentinel %q\n", len(c.All()), c.Sentinel())
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "catalog YAML file")
	return cmd
}
