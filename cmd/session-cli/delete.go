// ABOUTME: Delete command removing a conversation from the record store
// ABOUTME: Targets the given id through the controller so local state stays consistent

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctl, gw, _ := buildController(cfg)
		defer ctl.Close()

		id := args[0]
		gw.SetID(id)
		if err := ctl.DeleteConversation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
