package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stupiduntilnot/kinobot/internal/catalog"
	cmdpkg "github.com/stupiduntilnot/kinobot/internal/commander"
	"github.com/stupiduntilnot/kinobot/internal/lookup"
	"github.com/stupiduntilnot/kinobot/internal/video"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		switch token {
		case "ok", "empty":
			actions = append(actions, action{kind: token})
			continue
		}
		kind, arg, found := strings.Cut(token, ":")
		if !found {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		switch kind {
		case "err", "sleep", "msg", "msgb64", "anon", "panic":
			actions = append(actions, action{kind: kind, arg: arg})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepMillis(ctx context.Context, arg string) error {
	ms, _ := strconv.Atoi(arg)
	if ms <= 0 {
		return nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", lookup.ErrTimeout, ctx.Err())
	}
}

// Sent is a message recorded by Commander.
type Sent struct {
	ChatID int64
	Text   string
	Opts   cmdpkg.SendOptions
}

// Commander replays a poll script and records what the bot sends.
//
// Poll actions: ok (no updates), err:<class>, sleep:<ms>, msg:<text>,
// msgb64:<base64 text>, anon:<text> (message without a sender).
// Send actions: ok, err:<class>, sleep:<ms>.
type Commander struct {
	UserID int64
	ChatID int64

	mu       sync.Mutex
	poll     *scriptRunner
	send     *scriptRunner
	updateID int64
	sent     []Sent
	actions  []string
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Commander{UserID: 1, ChatID: 1, poll: poll, send: send}, nil
}

func (c *Commander) GetUpdates(ctx context.Context, offset int64, timeout int) ([]cmdpkg.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		return nil, sleepMillis(ctx, a.arg)
	case "msg":
		return c.update(a.arg, true), nil
	case "anon":
		return c.update(a.arg, false), nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return nil, fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
		}
		return c.update(string(raw), true), nil
	default:
		return nil, nil
	}
}

func (c *Commander) update(text string, withSender bool) []cmdpkg.Update {
	c.updateID++
	msg := &cmdpkg.Message{
		MessageID: c.updateID,
		Chat:      cmdpkg.Chat{ID: c.ChatID},
		Text:      &text,
		Date:      time.Now().Unix(),
	}
	if withSender {
		msg.From = &cmdpkg.User{ID: c.UserID}
	}
	return []cmdpkg.Update{{UpdateID: c.updateID, Message: msg}}
}

func (c *Commander) SendMessage(ctx context.Context, chatID int64, text string, opts cmdpkg.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := c.send.next()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, Sent{ChatID: chatID, Text: text, Opts: opts})
	return nil
}

func (c *Commander) SendChatAction(ctx context.Context, chatID int64, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

// Sent returns a copy of the messages sent so far.
func (c *Commander) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sent(nil), c.sent...)
}

// Actions returns the chat actions sent so far.
func (c *Commander) Actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.actions...)
}

// Catalog is a scripted catalog searcher.
//
// Actions: ok (one document named after the query), empty, msg:<name>,
// err:<class>, sleep:<ms>, panic:<value>.
type Catalog struct {
	mu     sync.Mutex
	script *scriptRunner
	calls  int
}

func NewCatalog(script string) (*Catalog, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Catalog{script: runner}, nil
}

func (c *Catalog) Search(ctx context.Context, query string, page, limit int) ([]catalog.Document, error) {
	c.mu.Lock()
	a := c.script.next()
	c.calls++
	c.mu.Unlock()

	switch a.kind {
	case "empty":
		return nil, nil
	case "err":
		return nil, scriptedError(a.arg)
	case "panic":
		panic(emptyAs(a.arg, "dummy catalog panic"))
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return nil, err
		}
	case "msg":
		query = a.arg
	}
	kp := 7.5
	name := query
	desc := "dummy description of " + query
	poster := "https://example.invalid/poster.jpg"
	return []catalog.Document{{
		Name:        &name,
		Description: &desc,
		Rating:      &catalog.Rating{KP: &kp},
		Poster:      &catalog.Poster{URL: &poster},
	}}, nil
}

// Calls returns how many times Search ran.
func (c *Catalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Videos is a scripted video source.
//
// Actions: ok (two items with URLs), empty, msg:<title> (one item without a
// URL), err:<class>, sleep:<ms>, panic:<value>.
type Videos struct {
	mu     sync.Mutex
	script *scriptRunner
	calls  int
}

func NewVideos(script string) (*Videos, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Videos{script: runner}, nil
}

func (v *Videos) Name() string { return "dummy" }

func (v *Videos) Search(ctx context.Context, query string, maxResults int) ([]video.Item, error) {
	v.mu.Lock()
	a := v.script.next()
	v.calls++
	v.mu.Unlock()

	switch a.kind {
	case "empty":
		return []video.Item{}, nil
	case "err":
		return nil, scriptedError(a.arg)
	case "panic":
		panic(emptyAs(a.arg, "dummy videos panic"))
	case "msg":
		return []video.Item{{Title: a.arg}}, nil
	case "sleep":
		if err := sleepMillis(ctx, a.arg); err != nil {
			return nil, err
		}
	}
	first := "https://example.invalid/video/1"
	second := "https://example.invalid/video/2"
	items := []video.Item{
		{Title: query + " 1", URL: &first},
		{Title: query + " 2", URL: &second},
	}
	if maxResults > 0 && len(items) > maxResults {
		items = items[:maxResults]
	}
	return items, nil
}

// Calls returns how many times Search ran.
func (v *Videos) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func scriptedError(class string) error {
	switch class {
	case "timeout":
		return fmt.Errorf("dummy: %w", lookup.ErrTimeout)
	case "status":
		return &lookup.StatusError{Code: 500, Body: "dummy"}
	case "malformed_body":
		return fmt.Errorf("dummy: %w", lookup.ErrMalformedBody)
	case "upstream":
		return &video.APIError{Code: 5, Message: "dummy"}
	default:
		return fmt.Errorf("dummy: %w", lookup.ErrTransport)
	}
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
