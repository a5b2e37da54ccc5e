package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	cmdpkg "github.com/stupiduntilnot/kinobot/internal/commander"
)

// maxMessageChars stays under the Bot API limit of 4096.
const maxMessageChars = 3900

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot API base URL
// (e.g. "https://api.telegram.org/bot<token>").
func NewClient(apiBase string, requestTimeout time.Duration) *Client {
	return &Client{
		apiBase: apiBase,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result"`
}

type Update = cmdpkg.Update
type Message = cmdpkg.Message

type sendMessageRequest struct {
	ChatID           int64          `json:"chat_id"`
	Text             string         `json:"text"`
	ParseMode        string         `json:"parse_mode,omitempty"`
	ReplyToMessageID int64          `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *replyKeyboard `json:"reply_markup,omitempty"`
}

type replyKeyboard struct {
	Keyboard       [][]keyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type chatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

// GetUpdates calls the getUpdates API.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(timeout))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create getUpdates request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read getUpdates response: %w", err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates response: %w", err)
	}
	if !tgResp.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok: %s", tgResp.Description)
	}

	var updates []Update
	if err := json.Unmarshal(tgResp.Result, &updates); err != nil {
		return nil, fmt.Errorf("failed to parse getUpdates result: %w", err)
	}
	return updates, nil
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts cmdpkg.SendOptions) error {
	if opts.ParseMode == cmdpkg.ParseModeHTML {
		text = truncateHTML(text, maxMessageChars)
	} else {
		text = truncate(text, maxMessageChars)
	}
	payload := sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ParseMode:        opts.ParseMode,
		ReplyToMessageID: opts.ReplyTo,
	}
	if len(opts.Keyboard) > 0 {
		kb := &replyKeyboard{ResizeKeyboard: true}
		for _, row := range opts.Keyboard {
			buttons := make([]keyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, keyboardButton{Text: label})
			}
			kb.Keyboard = append(kb.Keyboard, buttons)
		}
		payload.ReplyMarkup = kb
	}
	if err := c.post(ctx, "sendMessage", payload); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

// SendChatAction shows a chat action such as "typing".
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	if err := c.post(ctx, "sendChatAction", chatActionRequest{ChatID: chatID, Action: action}); err != nil {
		return fmt.Errorf("telegram sendChatAction failed: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, truncate(string(body), 400))
	}
	if !tgResp.OK {
		return fmt.Errorf("status=%d description=%s", resp.StatusCode, tgResp.Description)
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

// truncateHTML cuts s like truncate but never leaves a partial tag or entity
// behind, and closes tags the cut left open. Telegram rejects the whole
// message otherwise.
func truncateHTML(s string, maxChars int) string {
	cut := truncate(s, maxChars)
	if len(cut) == len(s) {
		return s
	}
	if lt := strings.LastIndexByte(cut, '<'); lt > strings.LastIndexByte(cut, '>') {
		cut = cut[:lt]
	}
	if amp := strings.LastIndexByte(cut, '&'); amp > strings.LastIndexByte(cut, ';') {
		cut = cut[:amp]
	}

	var open []string
	rest := cut
	for {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			break
		}
		gt := strings.IndexByte(rest[lt:], '>')
		if gt < 0 {
			break
		}
		tag := rest[lt+1 : lt+gt]
		rest = rest[lt+gt+1:]
		if name, ok := strings.CutPrefix(tag, "/"); ok {
			if n := len(open); n > 0 && open[n-1] == name {
				open = open[:n-1]
			}
			continue
		}
		name, _, _ := strings.Cut(tag, " ")
		open = append(open, name)
	}
	for i := len(open) - 1; i >= 0; i-- {
		cut += "</" + open[i] + ">"
	}
	return cut
}
