// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package position

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle in PDF user space: points, origin at the
// bottom-left of the page, X0 <= X1 and Y0 <= Y1 once normalized.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// NewRect returns the normalized rectangle spanning two corners.
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		X0: math.Min(x0, x1),
		Y0: math.Min(y0, y1),
		X1: math.Max(x0, x1),
		Y1: math.Max(y0, y1),
	}
}

// Width returns the horizontal extent
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns Width*Height, zero for empty rectangles
func (r Rect) Area() float64 {
	if r.IsEmpty() {
		return 0
	}
	return r.Width() * r.Height()
}

// IsEmpty reports whether the rectangle encloses no area.
func (r Rect) IsEmpty() bool {
	return !(r.X1 > r.X0 && r.Y1 > r.Y0)
}

// Center returns the centre point.
func (r Rect) Center() (float64, float64) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x <= r.X1 && y >= r.Y0 && y <= r.Y1
}

// Intersects reports whether the two rectangles share any area.
func (r Rect) Intersects(o Rect) bool {
	return !r.Intersect(o).IsEmpty()
}

// Intersect returns the overlap of two rectangles.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		X0: math.Max(r.X0, o.X0),
		Y0: math.Max(r.Y0, o.Y0),
		X1: math.Min(r.X1, o.X1),
		Y1: math.Min(r.Y1, o.Y1),
	}
}

// Union returns the smallest rectangle containing both. An empty operand is
// ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return Rect{
		X0: math.Min(r.X0, o.X0),
		Y0: math.Min(r.Y0, o.Y0),
		X1: math.Max(r.X1, o.X1),
		Y1: math.Max(r.Y1, o.Y1),
	}
}

// Expand grows the rectangle by margin points on every side.
func (r Rect) Expand(margin float64) Rect {
	return Rect{X0: r.X0 - margin, Y0: r.Y0 - margin, X1: r.X1 + margin, Y1: r.Y1 + margin}
}

// CoveredFraction returns the share of r's area that lies inside any of the
// given rectangles. Overlaps between the covering rectangles are not
// subtracted, so the result is clamped to 1.
func (r Rect) CoveredFraction(cover []Rect) float64 {
	area := r.Area()
	if area == 0 {
		return 0
	}
	covered := 0.0
	for _, c := range cover {
		covered += r.Intersect(c).Area()
	}
	return math.Min(covered/area, 1)
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", r.X0, r.Y0, r.X1, r.Y1)
}

// Matrix is a PDF affine transform [a b c d e f]:
//
//	x' = a*x + c*y + e
//	y' = b*x + d*y + f
type Matrix [6]float64

// Identity is the identity transform.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Multiply returns m × n: apply m first, then n.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms a point.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Invert returns the inverse transform, or false for a singular matrix.
func (m Matrix) Invert() (Matrix, bool) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-12 {
		return Matrix{}, false
	}
	inv := Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
	}
	inv[4] = -(m[4]*inv[0] + m[5]*inv[2])
	inv[5] = -(m[4]*inv[1] + m[5]*inv[3])
	return inv, true
}

// TransformRect returns the bounding box of the transformed rectangle.
func (m Matrix) TransformRect(r Rect) Rect {
	x0, y0 := m.Apply(r.X0, r.Y0)
	x1, y1 := m.Apply(r.X1, r.Y0)
	x2, y2 := m.Apply(r.X0, r.Y1)
	x3, y3 := m.Apply(r.X1, r.Y1)
	return Rect{
		X0: math.Min(math.Min(x0, x1), math.Min(x2, x3)),
		Y0: math.Min(math.Min(y0, y1), math.Min(y2, y3)),
		X1: math.Max(math.Max(x0, x1), math.Max(x2, x3)),
		Y1: math.Max(math.Max(y0, y1), math.Max(y2, y3)),
	}
}

// PageGeometry describes the visible area of a page as a rasterizer renders it.
type PageGeometry struct {
	// Box is the crop box (falling back to the media box) in user space
	Box Rect

	// Rotate is the page /Rotate value normalized to 0, 90, 180 or 270
	Rotate int
}

// NormalizeRotation folds any multiple of 90 into [0, 360).
func NormalizeRotation(rotate int) int {
	r := rotate % 360
	if r < 0 {
		r += 360
	}
	return (r / 90) * 90
}

// PixelSize returns the raster dimensions for the page at dpi.
func (g PageGeometry) PixelSize(dpi int) (int, int) {
	scale := float64(dpi) / 72
	w := int(math.Round(g.Box.Width() * scale))
	h := int(math.Round(g.Box.Height() * scale))
	if g.Rotate == 90 || g.Rotate == 270 {
		return h, w
	}
	return w, h
}

// PixelToPage maps a raster pixel coordinate (origin top-left of the rendered,
// rotated page) back to user space.
func (g PageGeometry) PixelToPage(px, py float64, dpi int) (float64, float64) {
	s := 72 / float64(dpi)
	u, v := px*s, py*s // points from the top-left of the displayed page
	b := g.Box
	switch g.Rotate {
	case 90:
		return b.X0 + v, b.Y0 + u
	case 180:
		return b.X1 - u, b.Y0 + v
	case 270:
		return b.X1 - v, b.Y1 - u
	default:
		return b.X0 + u, b.Y1 - v
	}
}

// PageToPixel is the inverse of PixelToPage.
func (g PageGeometry) PageToPixel(x, y float64, dpi int) (float64, float64) {
	s := float64(dpi) / 72
	b := g.Box
	var u, v float64
	switch g.Rotate {
	case 90:
		u, v = y-b.Y0, x-b.X0
	case 180:
		u, v = b.X1-x, y-b.Y0
	case 270:
		u, v = b.Y1-y, b.X1-x
	default:
		u, v = x-b.X0, b.Y1-y
	}
	return u * s, v * s
}

// PixelRectToPage maps a pixel rectangle to a user-space rectangle.
func (g PageGeometry) PixelRectToPage(x0, y0, x1, y1 int, dpi int) Rect {
	ax, ay := g.PixelToPage(float64(x0), float64(y0), dpi)
	bx, by := g.PixelToPage(float64(x1), float64(y1), dpi)
	return NewRect(ax, ay, bx, by)
}
