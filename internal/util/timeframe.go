package util

import (
	"strings"
	"time"
)

var timeframeDurations = map[string]time.Duration{
	Timeframe24h: 24 * time.Hour,
	Timeframe7d:  7 * 24 * time.Hour,
	Timeframe30d: 30 * 24 * time.Hour,
	Timeframe90d: 90 * 24 * time.Hour,
}

// ParseTimeframe 返回窗口起点，"all" 返回 nil；也接受 Go duration（如 "36h"）
func ParseTimeframe(timeframe string, now time.Time) (*time.Time, error) {
	tf := strings.ToLower(strings.TrimSpace(timeframe))
	if tf == "" {
		tf = Timeframe30d
	}
	if tf == TimeframeAll {
		return nil, nil
	}
	d, ok := timeframeDurations[tf]
	if !ok {
		parsed, err := time.ParseDuration(tf)
		if err != nil || parsed <= 0 {
			return nil, NewValidationError("timeframe", "unsupported timeframe %q", timeframe)
		}
		d = parsed
	}
	start := now.Add(-d)
	return &start, nil
}
