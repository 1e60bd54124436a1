// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRectOperations(t *testing.T) {
	a := NewRect(10, 20, 0, 0)
	assert.Equal(t, Rect{0, 0, 10, 20}, a)
	assert.Equal(t, 200.0, a.Area())

	b := Rect{5, 5, 15, 15}
	assert.True(t, a.Intersects(b))
	assert.Equal(t, Rect{5, 5, 10, 15}, a.Intersect(b))
	assert.Equal(t, Rect{0, 0, 15, 20}, a.Union(b))
	assert.Equal(t, Rect{-2, -2, 12, 22}, a.Expand(2))
	assert.False(t, a.Intersects(Rect{10, 0, 20, 20}), "shared edge has no area")

	assert.True(t, Rect{}.IsEmpty())
	assert.Equal(t, a, Rect{}.Union(a))
}

func TestCoveredFraction(t *testing.T) {
	r := Rect{0, 0, 10, 10}
	assert.Equal(t, 0.0, r.CoveredFraction(nil))
	assert.InDelta(t, 0.5, r.CoveredFraction([]Rect{{0, 0, 5, 10}}), 1e-9)
	assert.Equal(t, 1.0, r.CoveredFraction([]Rect{{-5, -5, 20, 20}, {0, 0, 10, 10}}))
}

func TestMatrix(t *testing.T) {
	translate := Matrix{1, 0, 0, 1, 10, 20}
	scale := Matrix{2, 0, 0, 3, 0, 0}

	x, y := translate.Multiply(scale).Apply(1, 1)
	assert.Equal(t, 22.0, x)
	assert.Equal(t, 63.0, y)

	inv, ok := translate.Multiply(scale).Invert()
	assert.True(t, ok)
	x, y = inv.Apply(22, 63)
	assert.InDelta(t, 1.0, x, 1e-9)
	assert.InDelta(t, 1.0, y, 1e-9)

	_, ok = Matrix{0, 0, 0, 0, 1, 1}.Invert()
	assert.False(t, ok)

	r := Matrix{0, 1, -1, 0, 0, 0}.TransformRect(Rect{0, 0, 10, 5})
	assert.InDelta(t, -5.0, r.X0, 1e-9)
	assert.InDelta(t, 10.0, r.Y1, 1e-9)
}

func TestPixelMappingRoundTrip(t *testing.T) {
	box := Rect{0, 0, 612, 792}
	for _, rot := range []int{0, 90, 180, 270} {
		g := PageGeometry{Box: box, Rotate: rot}
		px, py := g.PageToPixel(100, 700, 144)
		x, y := g.PixelToPage(px, py, 144)
		assert.InDelta(t, 100.0, x, 1e-9, "rotate %d", rot)
		assert.InDelta(t, 700.0, y, 1e-9, "rotate %d", rot)
	}
}

func TestPixelToPageUnrotated(t *testing.T) {
	g := PageGeometry{Box: Rect{0, 0, 612, 792}}
	// 144 dpi: 2 pixels per point, origin top-left
	x, y := g.PixelToPage(200, 100, 144)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 742.0, y)

	r := g.PixelRectToPage(200, 100, 400, 140, 144)
	assert.Equal(t, Rect{100, 722, 200, 742}, r)

	w, h := g.PixelSize(144)
	assert.Equal(t, 1224, w)
	assert.Equal(t, 1584, h)
	w, h = PageGeometry{Box: g.Box, Rotate: 90}.PixelSize(144)
	assert.Equal(t, 1584, w)
	assert.Equal(t, 1224, h)
}

func TestNormalizeRotation(t *testing.T) {
	assert.Equal(t, 0, NormalizeRotation(360))
	assert.Equal(t, 270, NormalizeRotation(-90))
	assert.Equal(t, 90, NormalizeRotation(450))
}
