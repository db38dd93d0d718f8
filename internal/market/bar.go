package market

import "time"

// Bar represents a single OHLCV candlestick.
type Bar struct {
	OpenTime  int64   `json:"open_time"`  // Unix milliseconds
	CloseTime int64   `json:"close_time"` // Unix milliseconds
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Timestamp returns the bar close time as a time.Time.
func (b Bar) Timestamp() time.Time {
	return time.UnixMilli(b.CloseTime)
}

// Range returns the high-low price range of the bar.
func (b Bar) Range() float64 {
	return b.High - b.Low
}
