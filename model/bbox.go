package model

import (
	"fmt"
	"strings"
)

// Latitude and longitude extremes.
const (
	MaxLat Degrees = 90.0
	MaxLon Degrees = 180.0
	MinLat Degrees = -90.0
	MinLon Degrees = -180.0
)

// BoundingBox is simply a bounding box.
type BoundingBox struct {
	Top    Degrees
	Left   Degrees
	Bottom Degrees
	Right  Degrees
}

// Contains checks if the bounding box contains the lat lng point.
func (b *BoundingBox) Contains(lat Degrees, lng Degrees) bool {
	return b.Left <= lng && lng <= b.Right && b.Bottom <= lat && lat <= b.Top
}

// EqualWithin checks if two bounding boxes are within a specific epsilon.
func (b *BoundingBox) EqualWithin(o *BoundingBox, eps Epsilon) bool {
	return b.Left.EqualWithin(o.Left, eps) &&
		b.Right.EqualWithin(o.Right, eps) &&
		b.Top.EqualWithin(o.Top, eps) &&
		b.Bottom.EqualWithin(o.Bottom, eps)
}

func (b *BoundingBox) String() string {
	return fmt.Sprintf("[(%s, %s) (%s, %s)]",
		b.Top.String(), b.Left.String(), b.Bottom.String(), b.Right.String())
}

// ParseBoundingBox parses a "left,bottom,right,top" string, the ordering
// used by the OSM API bbox query parameter.
func ParseBoundingBox(s string) (*BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bounding box must have 4 coordinates, got %d", len(parts))
	}

	coords := make([]Degrees, 4)

	for i, part := range parts {
		d, err := ParseDegrees(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad bounding box coordinate %q: %w", part, err)
		}

		coords[i] = d
	}

	bbox := &BoundingBox{Left: coords[0], Bottom: coords[1], Right: coords[2], Top: coords[3]}

	if bbox.Left > bbox.Right || bbox.Bottom > bbox.Top {
		return nil, fmt.Errorf("bounding box is inverted: %s", bbox)
	}

	if bbox.Left < MinLon || bbox.Right > MaxLon || bbox.Bottom < MinLat || bbox.Top > MaxLat {
		return nil, fmt.Errorf("bounding box is out of range: %s", bbox)
	}

	return bbox, nil
}
