// Package bot answers chat messages: movie queries go through the
// aggregator, /history and /stats read the history store.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stupiduntilnot/kinobot/internal/aggregator"
	cmdpkg "github.com/stupiduntilnot/kinobot/internal/commander"
	"github.com/stupiduntilnot/kinobot/internal/db"
)

const historyWriteTimeout = 5 * time.Second

// Resolver is satisfied by *aggregator.Aggregator.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*aggregator.Result, error)
}

// HistoryStore is satisfied by *db.History.
type HistoryStore interface {
	Append(ctx context.Context, userID int64, query string, title, url *string) (int64, error)
	Recent(ctx context.Context, userID int64, limit int) ([]db.HistoryEntry, error)
	Frequency(ctx context.Context, userID int64, limit int) ([]db.QueryCount, error)
}

// Options tune the bot. Zero fields take the defaults of DefaultOptions.
type Options struct {
	HistoryLimit         int
	StatsLimit           int
	PollTimeout          int
	Sleep                time.Duration
	DropPending          bool
	PendingWindowSeconds int64
	PendingMaxMessages   int
	MaxConcurrent        int
}

func DefaultOptions() Options {
	return Options{
		HistoryLimit:       10,
		StatsLimit:         10,
		PollTimeout:        30,
		Sleep:              time.Second,
		DropPending:        true,
		PendingMaxMessages: 50,
		MaxConcurrent:      8,
	}
}

type Bot struct {
	commander cmdpkg.Commander
	resolver  Resolver
	history   HistoryStore
	opts      Options
	logger    *zap.Logger
}

func New(commander cmdpkg.Commander, resolver Resolver, history HistoryStore, opts Options, logger *zap.Logger) *Bot {
	def := DefaultOptions()
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.StatsLimit <= 0 {
		opts.StatsLimit = def.StatsLimit
	}
	if opts.Sleep <= 0 {
		opts.Sleep = def.Sleep
	}
	if opts.PendingMaxMessages <= 0 {
		opts.PendingMaxMessages = def.PendingMaxMessages
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = def.MaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		commander: commander,
		resolver:  resolver,
		history:   history,
		opts:      opts,
		logger:    logger,
	}
}

// Run polls for updates until ctx is cancelled. Each message is handled in
// its own goroutine, at most MaxConcurrent at a time.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	if b.opts.DropPending {
		bootstrapped, err := b.bootstrapOffset(ctx)
		if err != nil {
			b.logger.Warn("bootstrap offset failed", zap.Error(err))
		} else {
			offset = bootstrapped
		}
	}

	b.logger.Info("bot running",
		zap.Int64("offset", offset),
		zap.Int("max_concurrent", b.opts.MaxConcurrent),
	)

	var g errgroup.Group
	g.SetLimit(b.opts.MaxConcurrent)

	for ctx.Err() == nil {
		updates, err := b.commander.GetUpdates(ctx, offset, b.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Warn("getUpdates failed", zap.Error(err))
			b.sleep(ctx)
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.Text == nil {
				continue
			}
			msg := update.Message
			g.Go(func() error {
				b.HandleMessage(ctx, msg)
				return nil
			})
		}
	}

	_ = g.Wait()
	b.logger.Info("bot stopped")
	return nil
}

// HandleMessage routes one message to its handler. Handler errors are
// logged; they never stop the bot.
func (b *Bot) HandleMessage(ctx context.Context, msg *cmdpkg.Message) {
	text := ""
	if msg.Text != nil {
		text = *msg.Text
	}
	cmd := ParseCommand(text)

	fields := []zap.Field{
		zap.String("request_id", uuid.NewString()),
		zap.Stringer("command", cmd),
		zap.Int64("chat_id", msg.Chat.ID),
	}
	if msg.From != nil {
		fields = append(fields, zap.Int64("user_id", msg.From.ID))
	}
	rb := *b
	rb.logger = b.logger.With(fields...)

	start := time.Now()
	if err := Route(cmd)(&rb, ctx, msg); err != nil {
		rb.logger.Error("handle message failed", zap.Error(err))
		return
	}
	rb.logger.Debug("message handled", zap.Duration("elapsed", time.Since(start)))
}

func (b *Bot) handleHelp(ctx context.Context, msg *cmdpkg.Message) error {
	return b.reply(ctx, msg, helpText, "")
}

func (b *Bot) handleHistory(ctx context.Context, msg *cmdpkg.Message) error {
	if msg.From == nil {
		return b.reply(ctx, msg, textNoSender, "")
	}
	entries, err := b.history.Recent(ctx, msg.From.ID, b.opts.HistoryLimit)
	if err != nil {
		b.logger.Error("read history failed", zap.Error(err))
		return b.reply(ctx, msg, textHistoryDown, "")
	}
	if len(entries) == 0 {
		return b.reply(ctx, msg, textNoHistory, "")
	}
	return b.reply(ctx, msg, RenderHistory(entries), "")
}

func (b *Bot) handleStats(ctx context.Context, msg *cmdpkg.Message) error {
	if msg.From == nil {
		return b.reply(ctx, msg, textNoSender, "")
	}
	counts, err := b.history.Frequency(ctx, msg.From.ID, b.opts.StatsLimit)
	if err != nil {
		b.logger.Error("read stats failed", zap.Error(err))
		return b.reply(ctx, msg, textHistoryDown, "")
	}
	if len(counts) == 0 {
		return b.reply(ctx, msg, textNoStats, "")
	}
	return b.reply(ctx, msg, RenderStats(counts), "")
}

func (b *Bot) handleQuery(ctx context.Context, msg *cmdpkg.Message) error {
	query := ""
	if msg.Text != nil {
		query = strings.TrimSpace(*msg.Text)
	}
	if msg.From == nil || query == "" {
		return b.reply(ctx, msg, textEmptyMessage, "")
	}
	userID := msg.From.ID

	if err := b.commander.SendChatAction(ctx, msg.Chat.ID, cmdpkg.ActionTyping); err != nil {
		b.logger.Debug("send typing failed", zap.Error(err))
	}

	res, err := b.resolver.Resolve(ctx, query)
	if err != nil {
		b.logger.Error("resolve failed", zap.String("query", query), zap.Error(err))
		b.record(ctx, userID, query, nil, nil)
		return b.reply(ctx, msg, textInternalError, "")
	}
	if res == nil {
		b.record(ctx, userID, query, nil, nil)
		return b.reply(ctx, msg, textNotFound, "")
	}

	var sendErr error
	for _, text := range RenderResult(res) {
		if err := b.reply(ctx, msg, text, cmdpkg.ParseModeHTML); err != nil {
			sendErr = errors.Join(sendErr, err)
		}
	}

	title := &query
	if res.Catalog.Title != nil && *res.Catalog.Title != "" {
		title = res.Catalog.Title
	}
	b.record(ctx, userID, query, title, res.FirstURL())
	return sendErr
}

// record appends to history; failures are logged and never block the reply.
// The write outlives cancellation of ctx so a lookup answered during shutdown
// is still recorded.
func (b *Bot) record(ctx context.Context, userID int64, query string, title, url *string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if _, err := b.history.Append(ctx, userID, query, title, url); err != nil {
		b.logger.Error("history unavailable",
			zap.String("query", query),
			zap.Bool("history_unavailable", errors.Is(err, db.ErrHistoryUnavailable)),
			zap.Error(err),
		)
	}
}

func (b *Bot) reply(ctx context.Context, msg *cmdpkg.Message, text, parseMode string) error {
	return b.commander.SendMessage(ctx, msg.Chat.ID, text, cmdpkg.SendOptions{
		ReplyTo:   msg.MessageID,
		ParseMode: parseMode,
		Keyboard:  keyboard,
	})
}

// bootstrapOffset skips updates that arrived while the bot was down, keeping
// at most PendingMaxMessages from the last PendingWindowSeconds.
func (b *Bot) bootstrapOffset(ctx context.Context) (int64, error) {
	updates, err := b.commander.GetUpdates(ctx, 0, 0)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	cutoff := time.Now().Unix() - b.opts.PendingWindowSeconds

	var inWindow []cmdpkg.Update
	if b.opts.PendingWindowSeconds > 0 {
		for _, u := range updates {
			if u.Message != nil && u.Message.Date >= cutoff {
				inWindow = append(inWindow, u)
			}
		}
	}

	if len(inWindow) == 0 {
		return updates[len(updates)-1].UpdateID + 1, nil
	}
	if len(inWindow) > b.opts.PendingMaxMessages {
		inWindow = inWindow[len(inWindow)-b.opts.PendingMaxMessages:]
	}
	return inWindow[0].UpdateID, nil
}

func (b *Bot) sleep(ctx context.Context) {
	t := time.NewTimer(b.opts.Sleep)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
