package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// newServersCmd creates the 'servers' subcommand.
func newServersCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Lists the discovered worlds without scraping them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			p, err := appInstance.Pipeline(nil)
			if err != nil {
				return err
			}
			servers, err := p.Discover(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(servers)
			}
			return printServers(cmd.OutOrStdout(), servers)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the worlds as JSON")
	return cmd
}

func printServers(w io.Writer, servers []housing.Server) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLOCATION\tPVP\tBATTLEYE\tEXPERIMENTAL")
	for _, s := range servers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\t%t\n",
			s.ID, s.Name, s.Location.Label, s.PvPType.Label, s.BattlEye, s.Experimental)
	}
	return tw.Flush()
}
