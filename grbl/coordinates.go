package grbl

import (
	"fmt"
	"strconv"
	"strings"

	iFmt "github.com/grblmini/gms/internal/fmt"
)

// Vec3 is a coordinate triplet from a status report, in whatever units the
// controller is configured to report.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// parseVec3 decodes a comma separated coordinate triplet. Fewer than three
// components, or a component that does not parse as a number, yields nil;
// components past the third (extra axes on some builds) are ignored.
func parseVec3(value string) *Vec3 {
	parts := strings.Split(value, ",")
	if len(parts) < 3 {
		return nil
	}
	var axes [3]float64
	for i := range axes {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil
		}
		axes[i] = f
	}
	return &Vec3{X: axes[0], Y: axes[1], Z: axes[2]}
}

// Sub returns v - o componentwise. Work position is derived this way from
// machine position and work coordinate offset when the controller omits it.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

func (v Vec3) String() string {
	return fmt.Sprintf(
		"%s,%s,%s",
		iFmt.SprintFloat(v.X, 3),
		iFmt.SprintFloat(v.Y, 3),
		iFmt.SprintFloat(v.Z, 3),
	)
}
