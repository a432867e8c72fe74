package widget

import "strconv"

// FormatNumber は件数を表示用に整形する。
// 1,000,000以上は "1.2M"、1,000以上は "1.5K"（小数第1位）、それ以外は10進数表記。
func FormatNumber(n int) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	default:
		return strconv.Itoa(n)
	}
}
