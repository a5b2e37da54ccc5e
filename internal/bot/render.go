package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/stupiduntilnot/kinobot/internal/aggregator"
	"github.com/stupiduntilnot/kinobot/internal/db"
	"github.com/stupiduntilnot/kinobot/internal/lookup"
	"github.com/stupiduntilnot/kinobot/internal/video"
)

const divider = "\n----------\n"

// maxDescriptionChars leaves room for the title, rating and poster within
// one Telegram message.
const maxDescriptionChars = 3000

const (
	helpText = "Я — бот для поиска фильмов.\n\n" +
		"Правила использования:\n" +
		"- Отправьте название фильма (любой текст трактуется как запрос к фильму).\n" +
		"- Команды:\n" +
		" /help — показать это сообщение;\n" +
		" /history — показать вашу историю запросов;\n" +
		" /stats — показать статистику по запрашиваемым вами фильмам.\n\n" +
		"Примеры запросов:\n" +
		"- «Начало»\n" +
		"- «Inception 2010»"

	textNoSender      = "Тебя не существует"
	textEmptyMessage  = "пустое сообщение или ошибка чтения id. Попробуйте позже"
	textNoHistory     = "У вас пока нет истории запросов."
	textNoStats       = "У вас пока нет истории статистики."
	textHistoryDown   = "История запросов временно недоступна. Попробуйте позже."
	textNotFound      = "Фильм не найден по запросу. Попробуйте указать год или другой вариант названия."
	textInternalError = "Произошла внутренняя ошибка при поиске. Попробуйте позже."
	placeholder       = "—"
)

// keyboard is attached to every reply.
var keyboard = [][]string{{"/history", "/stats", "/help"}}

// RenderResult renders one HTML message per non-empty result group.
func RenderResult(res *aggregator.Result) []string {
	var messages []string
	for _, group := range res.Groups() {
		var parts []string
		for _, item := range group {
			switch v := item.(type) {
			case aggregator.CatalogItem:
				parts = append(parts, catalogParts(v)...)
			case video.Item:
				parts = append(parts, videoParts(v)...)
			}
		}
		if len(parts) > 0 {
			messages = append(messages, strings.Join(parts, divider))
		}
	}
	return messages
}

func catalogParts(c aggregator.CatalogItem) []string {
	var parts []string
	if c.Title != nil && *c.Title != "" {
		head := "<b>" + html.EscapeString(*c.Title) + "</b>"
		if c.Year != nil && *c.Year > 0 {
			head += " (" + strconv.Itoa(*c.Year) + ")"
		}
		parts = append(parts, head)
	}
	if c.Description != nil && *c.Description != "" {
		desc := *c.Description
		if short := lookup.Truncate(desc, maxDescriptionChars); short != desc {
			desc = short + "..."
		}
		parts = append(parts, html.EscapeString(desc))
	}
	for _, field := range []*string{c.Rating, c.PosterURL} {
		if field != nil && *field != "" {
			parts = append(parts, html.EscapeString(*field))
		}
	}
	return parts
}

func videoParts(v video.Item) []string {
	var parts []string
	if v.Title != "" {
		parts = append(parts, html.EscapeString(v.Title))
	}
	if v.URL != nil && *v.URL != "" {
		parts = append(parts, html.EscapeString(*v.URL))
	}
	return parts
}

// RenderHistory renders entries as query/result/url/timestamp blocks.
func RenderHistory(entries []db.HistoryEntry) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, fmt.Sprintf(
			"Запрос: %s\nРезультат: %s\nСсылка: %s\nВремя (UTC): %s\n",
			e.Query, orPlaceholder(e.Title), orPlaceholder(e.URL), e.Timestamp,
		))
	}
	return strings.Join(blocks, "\n\n")
}

// RenderStats renders query frequencies, most frequent first.
func RenderStats(counts []db.QueryCount) string {
	blocks := make([]string, 0, len(counts))
	for _, c := range counts {
		blocks = append(blocks, fmt.Sprintf("Запрос: %s\nЧастота %d", c.Query, c.Count))
	}
	return strings.Join(blocks, "\n\n")
}

func orPlaceholder(s *string) string {
	if s == nil || *s == "" {
		return placeholder
	}
	return *s
}
