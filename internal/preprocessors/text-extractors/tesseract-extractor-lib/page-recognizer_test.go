// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package tesseractextractorlib

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura/internal/preprocessors/rasterizer"
	"obscura/internal/redactors/position"
	"obscura/internal/resilience"
)

type fakeEngine struct {
	words []RecognizedWord
	err   error
	calls int
}

func (f *fakeEngine) Recognize(_ context.Context, _ image.Image, _ int) ([]RecognizedWord, error) {
	f.calls++
	return f.words, f.err
}

var letter = position.PageGeometry{Box: position.Rect{X0: 0, Y0: 0, X1: 612, Y1: 792}}

func blankRaster(geom position.PageGeometry) rasterizer.Rasterizer {
	return rasterizer.Func(func(_ context.Context, _ string, _, dpi int) (image.Image, error) {
		w, h := geom.PixelSize(dpi)
		return image.NewGray(image.Rect(0, 0, w, h)), nil
	})
}

func TestBuildTextLayerMapsPixelsToPage(t *testing.T) {
	words := []RecognizedWord{
		{Text: "secret", Box: image.Rect(72, 92, 132, 104), Confidence: 90, Block: 1, Line: 1},
		{Text: "data", Box: image.Rect(140, 92, 170, 104), Confidence: 70, Block: 1, Line: 1},
	}
	layer := BuildTextLayer(words, image.Rect(0, 0, 612, 792), letter, 72)

	require.Len(t, layer.Words, 2)
	assert.Equal(t, position.Rect{X0: 72, Y0: 688, X1: 132, Y1: 700}, layer.Words[0].Rect)
	assert.InDelta(t, 80.0, layer.AverageConfidence, 1e-9)
	assert.False(t, layer.Empty())
}

func TestBuildTextLayerRescalesOffByOneRasters(t *testing.T) {
	words := []RecognizedWord{{Text: "x", Box: image.Rect(0, 0, 307, 397)}}
	// nominal size at 36 dpi is 306x396
	layer := BuildTextLayer(words, image.Rect(0, 0, 307, 397), letter, 36)
	assert.InDelta(t, 612.0, layer.Words[0].Rect.X1, 1e-9)
	assert.InDelta(t, 0.0, layer.Words[0].Rect.Y0, 1e-9)
}

func TestRecognizePage(t *testing.T) {
	engine := &fakeEngine{words: []RecognizedWord{{Text: "secret", Box: image.Rect(0, 0, 100, 50), Confidence: 95}}}
	r := NewPageRecognizer(engine, blankRaster(letter), 0, nil)

	layer, err := r.RecognizePage(context.Background(), "a.pdf", 1, letter, 144)
	require.NoError(t, err)
	require.Len(t, layer.Words, 1)
	assert.Equal(t, position.Rect{X0: 0, Y0: 767, X1: 50, Y1: 792}, layer.Words[0].Rect)
}

func TestRecognizePageOpensBreaker(t *testing.T) {
	engine := &fakeEngine{err: errors.New("tesseract crashed")}
	r := NewPageRecognizer(engine, blankRaster(letter), 2, nil)

	for i := 0; i < 2; i++ {
		_, err := r.RecognizePage(context.Background(), "a.pdf", i+1, letter, 72)
		require.Error(t, err)
	}
	_, err := r.RecognizePage(context.Background(), "a.pdf", 3, letter, 72)
	assert.True(t, resilience.IsCircuitBreakerError(err))
	assert.Equal(t, 2, engine.calls)
}

func TestRecognizePageEmpty(t *testing.T) {
	r := NewPageRecognizer(&fakeEngine{}, blankRaster(letter), 0, nil)
	layer, err := r.RecognizePage(context.Background(), "a.pdf", 1, letter, 72)
	require.NoError(t, err)
	assert.True(t, layer.Empty())
}

func TestFitImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	same, f := fitImage(img, 1_000_000)
	assert.Equal(t, 1.0, f)
	assert.Same(t, img, same)

	small, f := fitImage(img, 5000)
	assert.Equal(t, 100, small.Bounds().Dx())
	assert.InDelta(t, 0.5, f, 1e-9)
	assert.Equal(t, image.Rect(10, 10, 40, 40), unscale(image.Rect(5, 5, 20, 20), f))
}
