package notify

import (
	"fmt"
	"time"

	"kawase/internal/analysis/indicator"
)

// DefaultLocation is the display timezone for notification text. The
// audience trades Tokyo hours, so JST unless configured otherwise.
func DefaultLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Tokyo"); err == nil {
		return loc
	}
	return time.FixedZone("JST", 9*3600)
}

func kindLabel(kind string) string {
	switch kind {
	case indicator.DivergenceBullish:
		return "強気ダイバージェンス"
	case indicator.DivergenceBearish:
		return "弱気ダイバージェンス"
	default:
		return kind
	}
}

// FormatMessage builds the push-notification text for a detected
// divergence. All timestamps render in loc; pass DefaultLocation() when the
// user has no explicit preference.
func FormatMessage(symbol, interval string, d indicator.Divergence, now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultLocation()
	}
	return fmt.Sprintf(`🔔 ダイバージェンス検出！

📊 通貨ペア: %s
⏰ 時間足: %s
📈 種別: %s
💪 強度: %s
🎯 信頼度: %.0f
📅 検出時刻: %s

チャートで詳細を確認してください。`,
		symbol,
		interval,
		kindLabel(d.Kind),
		d.Strength,
		d.Confidence,
		now.In(loc).Format("2006/01/02 15:04:05"),
	)
}
