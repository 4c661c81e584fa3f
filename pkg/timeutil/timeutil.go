// Package timeutil holds the small set of time helpers shared by the bot,
// the worker and the HTTP API. Every calendar computation is UTC.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used for ingestion window keys.
const DateLayout = "2006-01-02"

// StartOfDay returns midnight UTC of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD as midnight UTC.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
}

// FormatDate formats t as YYYY-MM-DD in UTC.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// DiscordStyle is a Discord timestamp markup style.
type DiscordStyle byte

const (
	StyleShortDateTime DiscordStyle = 'f'
	StyleLongDateTime  DiscordStyle = 'F'
	StyleShortDate     DiscordStyle = 'd'
	StyleShortTime     DiscordStyle = 't'
	StyleRelative      DiscordStyle = 'R'
)

// DiscordTimestamp renders t as <t:unix:style>, which each Discord client
// shows in its own timezone.
func DiscordTimestamp(t time.Time, style DiscordStyle) string {
	return fmt.Sprintf("<t:%d:%c>", t.Unix(), style)
}
