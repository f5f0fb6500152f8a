package fmt

import (
	"strconv"
	"strings"
)

// SprintFloat formats value with at most decimal fraction digits, trimming
// trailing zeros and any dangling decimal point, so jog fragments and
// position readouts stay compact.
func SprintFloat(value float64, decimal uint) string {
	s := strconv.FormatFloat(value, 'f', int(decimal), 64)
	if decimal == 0 {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
