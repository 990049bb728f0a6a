package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"chatcollab/internal/chat"
	"chatcollab/internal/event"
	"chatcollab/internal/httpapi"
	"chatcollab/internal/roster"
	"chatcollab/internal/syncclient"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the session log as a table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), cfg, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Only show the last N messages (0 for all)")
}

func runHistory(ctx context.Context, cfg appConfig, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	api := &httpapi.Client{
		BaseURL:   cfg.server,
		SessionID: cfg.session,
		Timeout:   cfg.requestTimeout,
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.requestTimeout)
	defer cancel()

	hist, err := api.FetchHistory(ctx)
	if err != nil {
		return err
	}
	if hist.Skipped > 0 {
		ui.Warning("Skipped %d malformed history records", hist.Skipped)
	}

	// Reading the cache only; printing history does not claim a name.
	username := cfg.username
	if username == "" {
		cached, _ := roster.NameCache{Path: cfg.nameCachePath}.Get(cfg.session)
		username = nullCoalesce(cached, syncclient.DefaultUsername)
	}

	msgs := historyMessages(hist, username, time.Now(), limit)
	if len(msgs) == 0 {
		ui.Info("No messages in %s", nullCoalesce(cfg.session, "the default session"))
	} else if err := ui.HistoryTable(msgs, time.Local); err != nil {
		return err
	}
	if hist.Stage != nil {
		ui.StageSummary(syncclient.ReduceStage(chat.StageInfo{}, *hist.Stage))
	}
	return nil
}

func historyMessages(hist event.History, username string, now time.Time, limit int) []chat.Message {
	records := hist.Messages
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	msgs := make([]chat.Message, 0, len(records))
	for _, rec := range records {
		msgs = append(msgs, syncclient.ToMessage(rec, username, now))
	}
	return msgs
}
