package notify

import (
	"strconv"
	"strings"
	"time"

	"kawase/internal/analysis/indicator"
)

// Settings mirrors a user's notification preferences. Quiet hours are
// "HH:MM" strings in the user's display timezone; an unparseable or empty
// value disables the quiet window.
type Settings struct {
	Enabled            bool     `json:"is_enabled" toml:"enabled"`
	LineUserID         string   `json:"line_user_id" toml:"line_user_id"`
	MonitoredPairs     []string `json:"monitored_pairs" toml:"monitored_pairs"`
	MonitoredIntervals []string `json:"monitored_intervals" toml:"monitored_intervals"`
	NotifyBullish      bool     `json:"notify_bullish_divergence" toml:"notify_bullish"`
	NotifyBearish      bool     `json:"notify_bearish_divergence" toml:"notify_bearish"`
	MaxPerHour         int      `json:"max_notifications_per_hour" toml:"max_per_hour"`
	QuietHoursStart    string   `json:"quiet_hours_start" toml:"quiet_hours_start"`
	QuietHoursEnd      string   `json:"quiet_hours_end" toml:"quiet_hours_end"`
}

func (s Settings) WithDefaults() Settings {
	out := s
	if out.MaxPerHour <= 0 {
		out.MaxPerHour = 5
	}
	return out
}

// Monitors reports whether the (symbol, interval) pair is in the user's
// watch set. Callers check this before consulting Allow.
func (s Settings) Monitors(symbol, interval string) bool {
	return contains(s.MonitoredPairs, symbol) && contains(s.MonitoredIntervals, interval)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Suppression reasons returned by Allow, recorded in the notification log.
const (
	ReasonKindDisabled = "kind_disabled"
	ReasonQuietHours   = "quiet_hours"
	ReasonRateLimit    = "rate_limit"
)

// Allow decides whether a divergence may be pushed. Rules run in a fixed
// order and the first failing rule suppresses: kind toggle, then quiet
// hours, then the hourly rate limit. recentSuccessCount is the number of
// successfully delivered notifications in the trailing hour, read from the
// notification log by the caller.
//
// Allow is pure: it never reads clocks or stores itself, so two concurrent
// callers may both pass the rate check before either writes its log entry.
// Strict at-most-once delivery has to come from the store, not from here.
func Allow(settings Settings, kind string, now time.Time, recentSuccessCount int) (bool, string) {
	switch kind {
	case indicator.DivergenceBullish:
		if !settings.NotifyBullish {
			return false, ReasonKindDisabled
		}
	case indicator.DivergenceBearish:
		if !settings.NotifyBearish {
			return false, ReasonKindDisabled
		}
	default:
		return false, ReasonKindDisabled
	}

	if inQuietHours(settings.QuietHoursStart, settings.QuietHoursEnd, now) {
		return false, ReasonQuietHours
	}

	if recentSuccessCount >= settings.MaxPerHour {
		return false, ReasonRateLimit
	}
	return true, ""
}

// inQuietHours compares wall-clock minutes as HHMM integers. Bounds are
// inclusive on both ends. start > end means the window wraps past midnight
// (e.g. 22:00..06:00 covers 23:30 and 05:59 but not 10:00).
func inQuietHours(startStr, endStr string, now time.Time) bool {
	start, okStart := parseHHMM(startStr)
	end, okEnd := parseHHMM(endStr)
	if !okStart || !okEnd {
		return false
	}
	cur := now.Hour()*100 + now.Minute()
	if start <= end {
		return cur >= start && cur <= end
	}
	return cur >= start || cur <= end
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*100 + m, true
}

// CompletedOnBar keeps only divergences whose ending pivot sits on the most
// recently closed bar. Periodic re-scans see the same historical divergences
// every time; without this filter each scan would re-announce them.
func CompletedOnBar(divs []indicator.Divergence, barTimeUtc int64) []indicator.Divergence {
	out := make([]indicator.Divergence, 0, len(divs))
	for _, d := range divs {
		if d.End.TimeUtc == barTimeUtc {
			out = append(out, d)
		}
	}
	return out
}
