package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/m3rciful/cozybot/internal/app"
	"github.com/m3rciful/cozybot/internal/chat"
)

var (
	askUser    int64
	askExplain bool
)

var askCmd = &cobra.Command{
	Use:   "ask <text...>",
	Short: "Route one message through the bot and print the reply",
	Long: `Builds the full bot from config, routes the text as if user --user sent it
and prints the reply. Lead sessions live only as long as the process unless
sessions.backend is redis.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().Int64Var(&askUser, "user", 1, "User id the message is sent as")
	askCmd.Flags().BoolVar(&askExplain, "explain", false, "Print the FAQ match details")
}

func runAsk(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path, err := runOptions().ResolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := app.Load(path)
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	text := strings.Join(args, " ")
	reply, err := a.Router().Handle(ctx, chat.Inbound{UserID: askUser, Text: text})
	if err != nil {
		return err
	}
	printReply(cmd, reply)

	if askExplain {
		m := a.Resolver().Explain(text)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\nfaq: phase=%s score=%.2f threshold=%.0f", m.Phase, m.Score, a.Resolver().Threshold())
		if m.Pattern != "" {
			fmt.Fprintf(out, " pattern=%q", m.Pattern)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printReply(cmd *cobra.Command, reply chat.Reply) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "[%s/%s] %s\n", reply.Route, reply.Lang, reply.Text)
	for _, row := range reply.Keyboard {
		fmt.Fprintf(out, "  | %s |\n", strings.Join(row, " | "))
	}
}
