package indicator

import "kawase/internal/market"

// Settings 汇总一次背离分析所需的全部参数。
type Settings struct {
	RSIPeriod     int `json:"rsi_period,omitempty" toml:"rsi_period"`
	LookbackLeft  int `json:"lookback_left,omitempty" toml:"lookback_left"`
	LookbackRight int `json:"lookback_right,omitempty" toml:"lookback_right"`
	RangeLower    int `json:"range_lower,omitempty" toml:"range_lower"`
	RangeUpper    int `json:"range_upper,omitempty" toml:"range_upper"`
}

func (s Settings) WithDefaults() Settings {
	out := s
	if out.RSIPeriod <= 0 {
		out.RSIPeriod = DefaultRSIPeriod
	}
	if out.LookbackLeft <= 0 {
		out.LookbackLeft = 2
	}
	if out.LookbackRight <= 0 {
		out.LookbackRight = 2
	}
	if out.RangeLower <= 0 {
		out.RangeLower = 2
	}
	if out.RangeUpper <= 0 {
		out.RangeUpper = 15
	}
	return out
}

// Report 是一次完整分析的输出。
type Report struct {
	RSI         []Point      `json:"rsi"`
	Pivots      []Pivot      `json:"pivots"`
	Divergences []Divergence `json:"divergences"`
	Summary     Summary      `json:"summary"`
}

type Summary struct {
	TotalPivots int `json:"total_pivots"`
	HighPivots  int `json:"high_pivots"`
	LowPivots   int `json:"low_pivots"`
	Bullish     int `json:"bullish"`
	Bearish     int `json:"bearish"`
	Strong      int `json:"strong"`
}

// Analyze 串联 RSI → pivot → divergence 三步。数据不足时返回空 Report。
func Analyze(candles []market.Candle, cfg Settings) (Report, error) {
	cfg = cfg.WithDefaults()
	var rep Report

	rsi, err := RSI(candles, cfg.RSIPeriod)
	if err != nil {
		return rep, err
	}
	pivots, err := FindPivots(candles, rsi, cfg.LookbackLeft, cfg.LookbackRight)
	if err != nil {
		return rep, err
	}
	divs, err := Classify(pivots, cfg.RangeLower, cfg.RangeUpper)
	if err != nil {
		return rep, err
	}

	rep.RSI = rsi
	rep.Pivots = pivots
	rep.Divergences = divs
	for _, p := range pivots {
		if p.Kind == PivotHigh {
			rep.Summary.HighPivots++
		} else {
			rep.Summary.LowPivots++
		}
	}
	rep.Summary.TotalPivots = len(pivots)
	for _, d := range divs {
		switch d.Kind {
		case DivergenceBullish:
			rep.Summary.Bullish++
		case DivergenceBearish:
			rep.Summary.Bearish++
		}
		if d.Strength == StrengthStrong {
			rep.Summary.Strong++
		}
	}
	return rep, nil
}
