package internal

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lttng/lttng-ivc/internal/config"
	"github.com/lttng/lttng-ivc/internal/env"
	"github.com/lttng/lttng-ivc/internal/matrix"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pinned labels",
	Long:  `List prints the labels of run_configuration.yaml ordered by project and version.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	table, err := loadTable()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LABEL\tPROJECT\tCOMMIT\tDEPS\tNOTE")
	for _, row := range listRows(table, env.Deprecated(), env.TestOnly()) {
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}

// listRows formats one tab-separated row per label.
func listRows(table config.Table, deprecated, only map[string]bool) []string {
	labels := table.Labels()
	matrix.SortLabels(labels)
	rows := make([]string, 0, len(labels))
	for _, label := range labels {
		d := table[label]
		var note string
		switch {
		case deprecated[label]:
			note = "deprecated"
		case only[label]:
			note = "selected"
		}
		deps := "-"
		if len(d.Deps) > 0 {
			deps = fmt.Sprint(d.Deps)
		}
		rows = append(rows, fmt.Sprintf("%s\t%s\t%.12s\t%s\t%s", label, d.Project, d.SHA1, deps, note))
	}
	return rows
}
