package ratelimit

import (
	"math"
	"strconv"
	"time"
)

// helpers de header: valores inteiros, sem fmt.

func formatInt(v int) string { return strconv.Itoa(v) }

// formatSeconds arredonda para cima; header de espera nunca vai como 0.
func formatSeconds(d time.Duration) string {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
