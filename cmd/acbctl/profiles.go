package main

import (
	"encoding/json"
	"fmt"

	"agent-memory-be/pkg/acb"
	"agent-memory-be/pkg/acb/budget"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Print the budget profile of every mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		profiles, err := budget.LoadProfiles(profilesPath)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if outputFormat == "json" {
			table := make(map[acb.Mode]map[acb.Category]int, len(acb.AllModes))
			for _, m := range acb.AllModes {
				p := profiles.For(m)
				row := make(map[acb.Category]int, len(acb.Categories))
				for _, c := range acb.Categories {
					row[c] = p.Category(c).Weight
				}
				table[m] = row
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(table)
		}

		title := color.New(color.FgCyan, color.Bold)
		for _, m := range acb.AllModes {
			p := profiles.For(m)
			title.Fprintf(w, "%s (sum %d)\n", m, p.WeightSum())
			for _, c := range acb.Categories {
				cp := p.Category(c)
				fmt.Fprintf(w, "  %-20s %6d  half-life %-8s cap %d\n", c, cp.Weight, cp.HalfLife, cp.Capacity)
			}
		}
		return nil
	},
}
