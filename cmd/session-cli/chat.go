// ABOUTME: Interactive chat command driving the session controller
// ABOUTME: Handles first-contact on new conversations and resume of existing ones

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomhq/session-core/internal/controller"
	"github.com/loomhq/session-core/internal/conversation"
	"github.com/loomhq/session-core/internal/state"
)

var chatConversationID string

var (
	userLabel      = color.New(color.FgCyan, color.Bold)
	assistantLabel = color.New(color.FgGreen, color.Bold)
	systemColor    = color.New(color.FgYellow)
	errorColor     = color.New(color.FgRed)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the agent",
	Long: `Start an interactive chat session.

Without -c, the first message creates a new conversation and triggers the
agent's first reply. With -c, the conversation is loaded from the record store
and the transcript is replayed before the prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctl, _, st := buildController(cfg)
		defer ctl.Close()

		ctx := cmd.Context()

		if chatConversationID != "" {
			conv, err := ctl.LoadConversation(ctx, chatConversationID)
			if err != nil {
				return fmt.Errorf("loading conversation: %w", err)
			}
			systemColor.Printf("Resumed %q (%d messages)\n", conv.Title, len(conv.Messages))
			for _, msg := range conv.Messages {
				printMessage(msg)
			}
		} else {
			systemColor.Println("New conversation. Type a message, or /quit to exit.")
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			userLabel.Print("you> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				break
			}

			reply, err := sendTurn(ctx, ctl, st, line)
			if err != nil {
				errorColor.Printf("error: %v\n", err)
				continue
			}
			if reply != nil {
				printMessage(*reply)
			}
		}

		if id := st.CurrentID(); id != "" {
			systemColor.Printf("Conversation id: %s\n", id)
		}
		return scanner.Err()
	},
}

// sendTurn routes one user input through the controller. The first message of
// a fresh session creates the conversation and runs first contact.
func sendTurn(ctx context.Context, ctl *controller.Controller, st *state.SessionState, line string) (*conversation.Message, error) {
	if st.CurrentID() == "" {
		if _, err := ctl.StartConversation(ctx, line); err != nil {
			return nil, err
		}
		return ctl.ProcessFirstContact(ctx)
	}
	return ctl.SendMessage(ctx, line)
}

func printMessage(msg conversation.Message) {
	switch msg.Role {
	case conversation.RoleUser:
		userLabel.Print("you> ")
		fmt.Println(msg.Content)
	case conversation.RoleAssistant:
		assistantLabel.Print("agent> ")
		fmt.Println(msg.Content)
	default:
		systemColor.Printf("%s> %s\n", msg.Role, msg.Content)
	}
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "", "Resume an existing conversation id")
	rootCmd.AddCommand(chatCmd)
}
