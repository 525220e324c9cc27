// ABOUTME: List command showing the user's conversations from the record store
// ABOUTME: Renders id, title, status, and age in a tabwriter table

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		gw := buildGateway(cfg)
		convs, err := gw.ListConversations(cmd.Context())
		if err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tMESSAGES\tCREATED")
		for _, conv := range convs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				conv.ID,
				conv.Title,
				conv.Status,
				len(conv.Messages),
				conv.CreatedAt.Local().Format(time.DateTime),
			)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
