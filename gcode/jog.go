package gcode

import (
	"fmt"
	"unicode"

	iFmt "github.com/grblmini/gms/internal/fmt"
)

// Jog builds a relative jog line for the given axis, signed distance and
// feed rate, in millimeters (G21) or inches (G20). The result is sent as an
// ordinary line; the controller acknowledges it like any other command and
// it can be interrupted with the jog cancel real-time byte.
func Jog(axis rune, distance, feed float64, imperial bool) string {
	units := "G21"
	if imperial {
		units = "G20"
	}
	return fmt.Sprintf(
		"$J=%s G91 %c%s F%s",
		units,
		unicode.ToUpper(axis),
		iFmt.SprintFloat(distance, 3),
		iFmt.SprintFloat(feed, 0),
	)
}
