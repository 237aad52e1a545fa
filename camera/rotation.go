package camera

import (
	"math"
	"strings"

	"github.com/milosgajdos/go-posefilter/depth"
	"github.com/pkg/errors"
)

// Rotation is the rotation of the color (keypoint) pixel grid relative to the depth pixel grid
type Rotation int

const (
	// RotateNone means color and depth grids share orientation
	RotateNone Rotation = iota
	// Rotate90Clockwise means the color frame is the depth frame rotated 90 degrees clockwise
	Rotate90Clockwise
	// Rotate180 means the color frame is the depth frame rotated 180 degrees
	Rotate180
	// Rotate90CounterClockwise means the color frame is the depth frame rotated 90 degrees counter clockwise
	Rotate90CounterClockwise
)

var rotationNames = map[Rotation]string{
	RotateNone:               "none",
	Rotate90Clockwise:        "cw90",
	Rotate180:                "180",
	Rotate90CounterClockwise: "ccw90",
}

// String implements the Stringer interface.
func (r Rotation) String() string {
	if s, ok := rotationNames[r]; ok {
		return s
	}
	return "unknown"
}

// ParseRotation parses rotation name as returned by Rotation.String.
func ParseRotation(s string) (Rotation, error) {
	for r, name := range rotationNames {
		if strings.EqualFold(s, name) {
			return r, nil
		}
	}
	return RotateNone, errors.Errorf("unknown rotation: %q", s)
}

// Remap maps detector pixel (x, y) to a pixel of a depth frame with the given number of rows and cols.
// Coordinates are truncated toward zero. The returned pixel may lie outside of the frame.
//
//	RotateNone:               row = y,        col = x
//	Rotate90Clockwise:        row = rows - x, col = y
//	Rotate180:                row = rows - y, col = cols - x
//	Rotate90CounterClockwise: row = x,        col = cols - y
func (r Rotation) Remap(x, y float64, rows, cols int) depth.Pixel {
	var row, col float64

	switch r {
	case Rotate90Clockwise:
		row, col = float64(rows)-x, y
	case Rotate180:
		row, col = float64(rows)-y, float64(cols)-x
	case Rotate90CounterClockwise:
		row, col = x, float64(cols)-y
	default:
		row, col = y, x
	}

	return depth.Pixel{Row: int(math.Trunc(row)), Col: int(math.Trunc(col))}
}
