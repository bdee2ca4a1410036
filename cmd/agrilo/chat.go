package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the farming assistant",
}

var chatSendCmd = &cobra.Command{
	Use:   "send MESSAGE...",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question. The answer comes in the preferred
language unless --language is given.

Examples:
  agrilo chat send "When should I sow soybean?"
  agrilo chat send --language hi "गेहूं में कौन सा खाद डालें?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		language, _ := cmd.Flags().GetString("language")

		reply, err := a.client.SendChat(ctx, strings.Join(args, " "), language)
		if err != nil {
			return err
		}
		return a.print(reply, func(w io.Writer) {
			fmt.Fprintln(w, reply.Reply)
		})
	}),
}

var chatHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the conversation so far",
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		if err := a.requireLogin(ctx); err != nil {
			return err
		}
		messages, err := a.client.ChatHistory(ctx)
		if err != nil {
			return err
		}
		return a.print(messages, func(w io.Writer) {
			if len(messages) == 0 {
				fmt.Fprintln(w, "No messages yet")
				return
			}
			for _, m := range messages {
				fmt.Fprintf(w, "[%s] %s: %s\n", formatTime(m.CreatedAt.Time), m.Role, m.Message)
			}
		})
	}),
}

func init() {
	chatSendCmd.Flags().String("language", "", "Answer language (en, hi, mr)")

	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatHistoryCmd)
	rootCmd.AddCommand(chatCmd)
}
