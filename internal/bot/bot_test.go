package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stupiduntilnot/kinobot/internal/aggregator"
	cmdpkg "github.com/stupiduntilnot/kinobot/internal/commander"
	"github.com/stupiduntilnot/kinobot/internal/db"
	"github.com/stupiduntilnot/kinobot/internal/dummy"
)

type harness struct {
	bot       *Bot
	commander *dummy.Commander
	catalog   *dummy.Catalog
	videos    *dummy.Videos
	history   *db.History
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, pollScript, catalogScript, videoScript string) *harness {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/bot.db")
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(database))
	t.Cleanup(func() { _ = database.Close() })

	commander, err := dummy.NewCommander(pollScript, "ok")
	require.NoError(t, err)
	commander.UserID = 42
	commander.ChatID = 100
	cat, err := dummy.NewCatalog(catalogScript)
	require.NoError(t, err)
	videos, err := dummy.NewVideos(videoScript)
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	history := db.NewHistory(database)
	agg := aggregator.New(cat, []aggregator.VideoSource{videos}, aggregator.WithLogger(logger))
	opts := DefaultOptions()
	opts.DropPending = false
	opts.Sleep = 10 * time.Millisecond

	return &harness{
		bot:       New(commander, agg, history, opts, logger),
		commander: commander,
		catalog:   cat,
		videos:    videos,
		history:   history,
		logs:      logs,
	}
}

func message(text string, userID int64) *cmdpkg.Message {
	msg := &cmdpkg.Message{MessageID: 7, Chat: cmdpkg.Chat{ID: 100}, Text: &text}
	if userID != 0 {
		msg.From = &cmdpkg.User{ID: userID}
	}
	return msg
}

func TestHandleMessage_QueryFound(t *testing.T) {
	h := newHarness(t, "ok", "msg:Начало", "ok")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("  начало ", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].Text, "<b>Начало</b>")
	assert.Contains(t, sent[0].Text, "Рейтинг: 7.5")
	assert.Contains(t, sent[1].Text, "https://example.invalid/video/1")
	for _, s := range sent {
		assert.Equal(t, int64(100), s.ChatID)
		assert.Equal(t, cmdpkg.ParseModeHTML, s.Opts.ParseMode)
		assert.Equal(t, int64(7), s.Opts.ReplyTo)
		assert.Equal(t, keyboard, s.Opts.Keyboard)
	}
	assert.Equal(t, []string{cmdpkg.ActionTyping}, h.commander.Actions())

	entries, err := h.history.Recent(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "начало", entries[0].Query)
	require.NotNil(t, entries[0].Title)
	assert.Equal(t, "Начало", *entries[0].Title)
	require.NotNil(t, entries[0].URL)
	assert.Equal(t, "https://example.invalid/video/1", *entries[0].URL)
}

func TestHandleMessage_QueryNotFound(t *testing.T) {
	h := newHarness(t, "ok", "empty", "ok")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("asdfgh", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, textNotFound, sent[0].Text)
	assert.Equal(t, 0, h.videos.Calls())

	entries, err := h.history.Recent(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "asdfgh", entries[0].Query)
	assert.Nil(t, entries[0].Title)
	assert.Nil(t, entries[0].URL)
}

func TestHandleMessage_CatalogTimeoutIsNotFound(t *testing.T) {
	h := newHarness(t, "ok", "err:timeout", "ok")

	h.bot.HandleMessage(context.Background(), message("slow", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, textNotFound, sent[0].Text)
}

func TestHandleMessage_VideoFailureKeepsCatalog(t *testing.T) {
	h := newHarness(t, "ok", "ok", "err:timeout")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("Матрица", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 1, "empty video group is not sent")
	assert.Contains(t, sent[0].Text, "Матрица")

	entries, err := h.history.Recent(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Title)
	assert.Nil(t, entries[0].URL, "no video means no url, not a crash")
}

func TestHandleMessage_VideoWithoutURL(t *testing.T) {
	h := newHarness(t, "ok", "ok", "msg:no link")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("x", 42))

	entries, err := h.history.Recent(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].URL)
}

func TestHandleMessage_InternalError(t *testing.T) {
	h := newHarness(t, "ok", "panic:boom", "ok")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("Начало", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, textInternalError, sent[0].Text)

	entries, err := h.history.Recent(ctx, 42, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1, "query is recorded even when the lookup fails")
	assert.Nil(t, entries[0].Title)
	assert.Equal(t, 1, h.logs.FilterMessage("resolve failed").Len())
}

func TestHandleMessage_NoSender(t *testing.T) {
	h := newHarness(t, "ok", "ok", "ok")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("/history", 0))
	h.bot.HandleMessage(ctx, message("/stats", 0))
	h.bot.HandleMessage(ctx, message("Начало", 0))

	sent := h.commander.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, textNoSender, sent[0].Text)
	assert.Equal(t, textNoSender, sent[1].Text)
	assert.Equal(t, textEmptyMessage, sent[2].Text)
	assert.Equal(t, 0, h.catalog.Calls())
}

func TestHandleMessage_Help(t *testing.T) {
	h := newHarness(t, "ok", "ok", "ok")

	h.bot.HandleMessage(context.Background(), message("/start", 42))

	sent := h.commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, helpText, sent[0].Text)
	assert.Equal(t, keyboard, sent[0].Opts.Keyboard)
}

func TestHandleMessage_HistoryAndStats(t *testing.T) {
	h := newHarness(t, "ok", "empty", "ok")
	ctx := context.Background()

	h.bot.HandleMessage(ctx, message("/history", 42))
	h.bot.HandleMessage(ctx, message("/stats", 42))
	sent := h.commander.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, textNoHistory, sent[0].Text)
	assert.Equal(t, textNoStats, sent[1].Text)

	for _, q := range []string{"a", "c", "a", "b", "a"} {
		h.bot.HandleMessage(ctx, message(q, 42))
	}
	h.bot.HandleMessage(ctx, message("/history", 42))
	h.bot.HandleMessage(ctx, message("/stats", 42))

	sent = h.commander.Sent()
	history := sent[len(sent)-2].Text
	stats := sent[len(sent)-1].Text
	assert.Contains(t, history, "Запрос: a\nРезультат: —")
	assert.Equal(t, "Запрос: a\nЧастота 3\n\nЗапрос: b\nЧастота 1\n\nЗапрос: c\nЧастота 1", stats)
}

func TestHandleMessage_HistoryUnavailableDoesNotBlockReply(t *testing.T) {
	h := newHarness(t, "ok", "ok", "ok")
	ctx := context.Background()
	require.NoError(t, h.history.DB.Close())

	h.bot.HandleMessage(ctx, message("Начало", 42))
	sent := h.commander.Sent()
	require.Len(t, sent, 2, "lookup reply is still sent")

	entries := h.logs.FilterMessage("history unavailable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["history_unavailable"])

	h.bot.HandleMessage(ctx, message("/history", 42))
	sent = h.commander.Sent()
	assert.Equal(t, textHistoryDown, sent[len(sent)-1].Text)
}

func TestHandleMessage_RecordsAfterCancel(t *testing.T) {
	h := newHarness(t, "ok", "ok", "ok")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.bot.HandleMessage(ctx, message("Начало", 42))
	require.Len(t, h.commander.Sent(), 2)

	entries, err := h.history.Recent(context.Background(), 42, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1, "answered lookup is recorded during shutdown")
	assert.Equal(t, "Начало", entries[0].Query)
	assert.Equal(t, 0, h.logs.FilterMessage("history unavailable").Len())
}

func TestRun_HandlesUpdatesUntilCancelled(t *testing.T) {
	h := newHarness(t, "msg:/help,msg:Начало,err:command_source_api,sleep:5", "ok", "ok")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(h.commander.Sent()) >= 3 && h.logs.FilterMessage("getUpdates failed").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	entries, err := h.history.Recent(context.Background(), 42, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Начало", entries[0].Query)
}

func TestRun_DropsPendingUpdates(t *testing.T) {
	h := newHarness(t, "msg:stale query,msg:/help,sleep:5", "ok", "ok")
	h.bot.opts.DropPending = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx) }()

	require.Eventually(t, func() bool { return len(h.commander.Sent()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	sent := h.commander.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, helpText, sent[0].Text)
	assert.Equal(t, 0, h.catalog.Calls(), "pending query is skipped")
}
