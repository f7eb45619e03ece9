package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thebtf/contraceptiq/internal/mec"
	"github.com/thebtf/contraceptiq/internal/scoring"
	"github.com/thebtf/contraceptiq/pkg/models"
)

func newMECCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "mec <answers.json>",
		Short: "Show the WHO MEC category of every method",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, answers, err := parseAnswers(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			result := mec.Calculate(mec.InputFromAnswers(answers))
			if asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "METHOD\tMEC\tLABEL")
			for _, id := range models.Methods {
				c, _ := result.Category(id)
				fmt.Fprintf(tw, "%s\t%d\t%s\n", id, c, mec.Label(c))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newRecommendCmd() *cobra.Command {
	var (
		prefs  []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "recommend [answers.json]",
		Short: "Rank methods by eligibility and preference fit",
		Long: fmt.Sprintf(`Without answers every method is treated as MEC category 1.

Preference tags: %v`, scoring.PreferenceTags),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ranked []scoring.RankedMethod
			if len(args) == 1 {
				_, answers, err := parseAnswers(args[0], cmd.InOrStdin())
				if err != nil {
					return err
				}
				ranked = scoring.Rank(mec.Calculate(mec.InputFromAnswers(answers)), prefs)
			} else {
				ranked = scoring.RankByPreference(prefs)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), ranked)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tMETHOD\tMEC\tMATCH")
			for i, m := range ranked {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", i+1, m.ID, m.Category, m.MatchScore)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&prefs, "prefer", nil, "preference tags, comma separated")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
