// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package tesseractextractorlib

import (
	"context"
	"fmt"
	"image"

	"obscura/internal/observability"
	"obscura/internal/preprocessors/rasterizer"
	"obscura/internal/redactors/position"
	"obscura/internal/resilience"
)

// TextLayer is the OCR result for one page, in user space.
type TextLayer struct {
	Words []position.Word

	// AverageConfidence is the mean word confidence, zero without words
	AverageConfidence float64
}

// Empty reports whether no words were recognized.
func (l *TextLayer) Empty() bool {
	return l == nil || len(l.Words) == 0
}

// PageRecognizer renders pages and recognizes their words. A circuit
// breaker around the engine makes a broken OCR install fail fast after a few
// pages instead of once per page.
type PageRecognizer struct {
	engine   Engine
	raster   rasterizer.Rasterizer
	breaker  *resilience.CircuitBreaker
	observer *observability.StandardObserver
}

// NewPageRecognizer wires an engine to a rasterizer. failureThreshold <= 0
// uses the breaker default.
func NewPageRecognizer(engine Engine, raster rasterizer.Rasterizer, failureThreshold int, observer *observability.StandardObserver) *PageRecognizer {
	cfg := resilience.DefaultCircuitBreakerConfig("ocr")
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	r := &PageRecognizer{
		engine:   engine,
		raster:   raster,
		observer: observer,
	}
	cfg.OnStateChange = func(name string, from, to resilience.CircuitBreakerState) {
		r.observer.Warn(r.GetComponentName(), "breaker_state", "", nil, map[string]interface{}{
			"breaker": name,
			"from":    from.String(),
			"to":      to.String(),
		})
	}
	r.breaker = resilience.NewCircuitBreaker(cfg)
	return r
}

// GetComponentName returns the component name for observability
func (r *PageRecognizer) GetComponentName() string {
	return "ocr"
}

// RecognizePage renders page (1-based) of pdfPath at dpi and maps the
// recognized words into the page's user space. An empty layer with a nil
// error means OCR ran and found nothing.
func (r *PageRecognizer) RecognizePage(ctx context.Context, pdfPath string, page int, geom position.PageGeometry, dpi int) (*TextLayer, error) {
	finishTiming := r.observer.StartTiming(r.GetComponentName(), "recognize_page", pdfPath)

	var layer *TextLayer
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		img, err := r.raster.RasterizePage(ctx, pdfPath, page, dpi)
		if err != nil {
			return fmt.Errorf("rasterize page %d: %w", page, err)
		}
		words, err := r.engine.Recognize(ctx, img, dpi)
		if err != nil {
			return fmt.Errorf("ocr page %d: %w", page, err)
		}
		layer = BuildTextLayer(words, img.Bounds(), geom, dpi)
		return nil
	})

	finishTiming(err == nil, map[string]interface{}{"page": page, "dpi": dpi})
	if err != nil {
		return nil, err
	}
	return layer, nil
}

// BuildTextLayer maps OCR words from pixel space to user space. The raster
// may differ from the nominal size at dpi by rounding, so boxes are rescaled
// to the nominal size first.
func BuildTextLayer(words []RecognizedWord, bounds image.Rectangle, geom position.PageGeometry, dpi int) *TextLayer {
	nw, nh := geom.PixelSize(dpi)
	sx, sy := 1.0, 1.0
	if bounds.Dx() > 0 && nw > 0 {
		sx = float64(nw) / float64(bounds.Dx())
	}
	if bounds.Dy() > 0 && nh > 0 {
		sy = float64(nh) / float64(bounds.Dy())
	}

	layer := &TextLayer{Words: make([]position.Word, 0, len(words))}
	var sum float64
	for _, w := range words {
		x0 := float64(w.Box.Min.X-bounds.Min.X) * sx
		y0 := float64(w.Box.Min.Y-bounds.Min.Y) * sy
		x1 := float64(w.Box.Max.X-bounds.Min.X) * sx
		y1 := float64(w.Box.Max.Y-bounds.Min.Y) * sy
		ax, ay := geom.PixelToPage(x0, y0, dpi)
		bx, by := geom.PixelToPage(x1, y1, dpi)

		layer.Words = append(layer.Words, position.Word{
			Text:       w.Text,
			Rect:       position.NewRect(ax, ay, bx, by),
			Block:      w.Block,
			Line:       w.Line,
			Confidence: w.Confidence,
		})
		sum += w.Confidence
	}
	if len(layer.Words) > 0 {
		layer.AverageConfidence = sum / float64(len(layer.Words))
	}
	return layer
}
