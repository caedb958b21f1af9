package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gapminder/internal/engine"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load the dataset and print what the explorer would serve",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := engine.LoadColumnar(cfg.DataPath, logger)
		if err != nil {
			return fmt.Errorf("load %s: %w", cfg.DataPath, err)
		}
		sum := store.Aggregate()

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "rows\t%d\n", store.Len())
		if first, last, ok := store.YearRange(); ok {
			fmt.Fprintf(w, "years\t%d-%d\n", first, last)
		}
		fmt.Fprintf(w, "countries\t%d\n", len(store.CountryDict))
		fmt.Fprintf(w, "regions\t%d\n", len(store.RegionDict))
		fmt.Fprintln(w)
		fmt.Fprintln(w, "field\tmin\tmax")
		for _, f := range append(engine.SelectableFields, engine.Population) {
			b := sum.Fields[f]
			fmt.Fprintf(w, "%s\t%g\t%g\n", f, b.Min, b.Max)
		}
		return w.Flush()
	},
}
