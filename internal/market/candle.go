package market

import "sort"

// Candle 表示一根已收盘的 K 线，OpenTime 为 UTC 毫秒。
type Candle struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
}

// Normalize 按 OpenTime 升序排序并去掉重复时间戳（保留后出现的一根）。
// 核心分析层假定输入已经有序且无重复，由数据源一侧统一调用。
func Normalize(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	dedup := out[:0]
	for _, c := range out {
		n := len(dedup)
		if n > 0 && dedup[n-1].OpenTime == c.OpenTime {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// IndexByOpenTime 返回指定 OpenTime 所在下标，不存在时返回 -1。
func IndexByOpenTime(candles []Candle, openTime int64) int {
	i := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime >= openTime })
	if i < len(candles) && candles[i].OpenTime == openTime {
		return i
	}
	return -1
}

// Closes 提取收盘价序列。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
