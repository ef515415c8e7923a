// Package timefmt renders durations as coarse, human-readable approximations
// suitable for time-remaining labels.
package timefmt

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Describe converts d into an "Approx. N unit" label. Values under a minute
// are rounded to whole seconds; minutes and hours keep one decimal place.
// Rounding is half-to-even. Negative durations are not supported.
func Describe(d time.Duration) string {
	switch {
	case d.Seconds() < 60:
		return fmt.Sprintf("Approx. %s seconds", formatRounded(d.Seconds(), 0))
	case d.Minutes() < 60:
		return fmt.Sprintf("Approx. %s minutes", formatRounded(d.Minutes(), 1))
	default:
		return fmt.Sprintf("Approx. %s hours", formatRounded(d.Hours(), 1))
	}
}

func formatRounded(v float64, decimals int) string {
	scale := math.Pow10(decimals)
	rounded := math.RoundToEven(v*scale) / scale
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
