package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/session"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const welcomeMessage = `Welcome to your Loan Assistant.

I can help with:
  - Loan knowledge: product details from the knowledge base.
  - Your loans: your existing applications and the loans on offer.
  - Suggestions and applications: loans that fit your profile, and applying for one when you ask.
  - Calculations: APR and monthly payments.

Try "What is a personal loan?", "What's the APR for my loans?" or
"I want to apply for the loan you suggested."

I do not give financial advice. For decisions, consult a licensed professional.

Commands: /user <id>  /reset  /loans  /history  /quit`

func buildChatCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive advisory session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), userID)
		},
	}
	cmd.Flags().Int64VarP(&userID, "user", "u", 1, "ID of the active user")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, userID int64) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := session.New(ctx, a.runner, a.store, userID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, welcomeMessage)
	fmt.Fprintf(out, "\nActive user: %d (%s)\n", sess.User().UserID, sess.User().Email)
	printResumeNotice(ctx, out, sess)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "\nyou> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, out, sess, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		res, err := sess.Send(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "assistant> %s\n", res.Reply)
	}
}

// printResumeNotice tells the user when their thread still holds messages
// from an earlier run.
func printResumeNotice(ctx context.Context, out io.Writer, sess *session.Session) {
	n, err := sess.MessageCount(ctx)
	if err != nil {
		logx.Warn().Err(err).Int64("user_id", sess.User().UserID).Msg("Could not count checkpointed messages")
		return
	}
	if n > 0 {
		fmt.Fprintf(out, "Resuming your conversation (%d earlier messages). Type /reset to start over.\n", n)
	}
}

func handleCommand(ctx context.Context, out io.Writer, sess *session.Session, line string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/reset":
		if err := sess.ClearMemory(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "Conversation memory cleared.")
	case "/user":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /user <id>")
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return false, fmt.Errorf("invalid user id %q", fields[1])
		}
		if err := sess.ChangeUser(ctx, id); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "Active user: %d (%s). Memory cleared.\n", sess.User().UserID, sess.User().Email)
	case "/loans":
		loans, err := sess.Applications(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(out, model.UserLoansToContext(loans))
	case "/history":
		msgs, err := sess.History(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			if m.Content == "" {
				continue
			}
			fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
		}
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
