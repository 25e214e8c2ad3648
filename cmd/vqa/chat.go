package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/visionqa/vqa/internal/session"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask questions about the onboarded project",
	Long: `Ask questions about the onboarded project. The conversation thread is
kept between invocations.

With a message the answer is printed and the command exits. Without one an
interactive prompt starts; /reset starts a new conversation, /history prints
it, /exit quits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			chat := a.session.Chat
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return sendChat(cmd, chat, out, strings.Join(args, " "))
			}
			return chatREPL(cmd, chat, cmd.InOrStdin(), out)
		})
	},
}

var chatResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the chat history and thread",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Chat.Reset(); err != nil {
				return err
			}
			printSuccess("Chat reset")
			return nil
		})
	},
}

func init() {
	chatCmd.AddCommand(chatResetCmd)
}

func sendChat(cmd *cobra.Command, chat *session.ChatSession, out io.Writer, message string) error {
	turn, ok, err := chat.Send(cmd.Context(), message)
	if !ok {
		return fmt.Errorf("message is empty")
	}
	if err != nil {
		slog.Debug("chat stage failed", "error", err)
		printError("%s", turn.Answer)
		return nil
	}
	fmt.Fprintln(out, turn.Answer)
	return nil
}

func chatREPL(cmd *cobra.Command, chat *session.ChatSession, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(cmd.ErrOrStderr(), colorize(colorCyan, "> "))
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := chat.Reset(); err != nil {
				return err
			}
			printSuccess("Chat reset")
			continue
		case "/history":
			printHistory(out, chat.Snapshot())
			continue
		}
		if err := sendChat(cmd, chat, out, line); err != nil {
			return err
		}
	}
}

func printHistory(out io.Writer, turns []session.Turn) {
	for _, t := range turns {
		if t.Superseded {
			continue
		}
		fmt.Fprintf(out, "%s %s\n%s\n\n", colorize(colorBold, "you:"), t.Question, t.Answer)
	}
}
