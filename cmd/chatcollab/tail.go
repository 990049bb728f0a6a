package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chatcollab/internal/output"
)

var tailStdin bool

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the session on stdout without the full-screen UI",
	Long: `Follow the session and print messages, status changes and stage progress as
plain lines. With --stdin every line read from standard input is posted to the
session as your message.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		var input io.Reader
		if tailStdin {
			input = cmd.InOrStdin()
		}
		return runTail(cmd.Context(), cfg, input)
	},
}

func init() {
	tailCmd.Flags().BoolVar(&tailStdin, "stdin", false, "Post each line read from stdin as a message")
}

func runTail(parent context.Context, cfg appConfig, input io.Reader) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	renderer := output.NewConsoleRenderer(ui)
	sess, notes, err := newSession(cfg, renderer, logger)
	if err != nil {
		return err
	}
	for _, note := range notes {
		ui.Warning("%s", note)
	}
	ui.Info("Following %s as %s (%s)", nullCoalesce(cfg.session, "default session"), sess.username, cfg.transport)

	sess.start(ctx)
	if input != nil {
		go func() {
			if err := forwardLines(ctx, input, sess.client.SubmitWait); err != nil && ctx.Err() == nil {
				logger.Warn("stdin forwarding stopped", "error", err)
			}
		}()
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess.stop(stopCtx)
	return nil
}

// forwardLines sends each non-blank line in order, waiting for every send to settle before
// reading the next. A rejected line is reported by the client and does not stop forwarding.
func forwardLines(ctx context.Context, input io.Reader, submit func(context.Context, string) error) error {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := submit(ctx, line); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}
