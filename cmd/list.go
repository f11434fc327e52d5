package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/uoaprobe/internal/scenario"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scenarios and whether they would run",
	Long: `List every scenario in run order with its mode. Scenarios whose endpoints are
not configured are shown with the reason they would be skipped.

Examples:
  uoaprobe list
  uoaprobe list --lb-ipv4 10.0.0.1:6000 --self-ipv4 10.0.1.5 -k lb-ipv4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd)
	},
}

func init() {
	addTargetFlags(listCmd.Flags())
}

func runList(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd.Flags(), targetFlags)
	if err != nil {
		return err
	}
	scenarios, err := scenario.Catalog(cfg.Targets, scenario.CatalogOptions{PrimingRounds: cfg.Probe.PrimingRounds})
	if err != nil {
		return err
	}
	if scenarios, err = scenario.Filter(scenarios, cfg.Probe.Filter); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tMODE\tATTEMPTS\tSTATUS")
	for _, s := range scenarios {
		status := "ready"
		if s.Skipped() {
			status = "skip: " + s.SkipReason
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Mode, len(s.Attempts), status)
	}
	return w.Flush()
}
