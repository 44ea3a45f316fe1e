package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aceteam-ai/dream-cli/internal/ledger"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent generation runs from the local ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printHistory(os.Stdout, ledgerPath, historyLimit)
	},
}

func printHistory(w io.Writer, path string, limit int) error {
	store, err := ledger.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATE\tJOB\tIMAGES\tKUDOS\tPROMPT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%g\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			stateColor(r.State), r.JobID, r.Generations, r.Requested, r.Kudos, truncate(r.Prompt, 40))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total, err := store.TotalKudos()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nTotal kudos spent: %g\n", total)
	return nil
}

func stateColor(state string) string {
	switch state {
	case "completed":
		return color.GreenString(state)
	case "cancelled":
		return color.YellowString(state)
	default:
		return color.RedString(state)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&ledgerPath, "ledger", ledger.DefaultPath(), "Path of the local run ledger")
	rootCmd.AddCommand(historyCmd)
}
