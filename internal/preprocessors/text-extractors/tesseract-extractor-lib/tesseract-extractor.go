// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package tesseractextractorlib

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"
)

// MaxPixels caps the image size handed to tesseract; larger renders are
// scaled down and the word boxes scaled back up.
const MaxPixels = 40_000_000

// RecognizedWord is one word found by OCR, in pixel coordinates of the
// recognized image.
type RecognizedWord struct {
	Text       string
	Box        image.Rectangle
	Confidence float64 // 0-100

	// Block and Line identify the text line the word belongs to
	Block int
	Line  int
}

// Engine recognizes words in an image rendered at dpi.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, dpi int) ([]RecognizedWord, error)
}

// TesseractEngine implements Engine with the gosseract client.
type TesseractEngine struct {
	tessdata      Tessdata
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine resolves language data and constructs an engine.
func NewTesseractEngine(cfg Config) (*TesseractEngine, error) {
	td, err := ResolveTessdata(cfg)
	if err != nil {
		return nil, err
	}
	return &TesseractEngine{tessdata: td, clientFactory: gosseract.NewClient}, nil
}

// Tessdata returns the language data the engine uses.
func (e *TesseractEngine) Tessdata() Tessdata {
	return e.tessdata
}

// GetComponentName returns the component name for observability
func (e *TesseractEngine) GetComponentName() string {
	return "tesseract"
}

// Recognize runs word-level recognition. A fresh client is used per call so
// the engine can be shared by workers.
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image, dpi int) ([]RecognizedWord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scaled, factor := fitImage(img, MaxPixels)
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetTessdataPrefix(e.tessdata.Dir); err != nil {
		return nil, fmt.Errorf("set tessdata prefix: %w", err)
	}
	if err := c.SetLanguage(e.tessdata.Languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if dpi > 0 {
		effective := int(math.Round(float64(dpi) * factor))
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(effective)); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := make([]RecognizedWord, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		words = append(words, RecognizedWord{
			Text:       text,
			Box:        unscale(b.Box, factor).Intersect(img.Bounds()),
			Confidence: b.Confidence,
			Block:      b.BlockNum,
			Line:       b.ParNum*1000 + b.LineNum,
		})
	}
	return words, nil
}

// fitImage scales img down so it has at most maxPixels pixels. The returned
// factor is the applied scale, 1 when img is returned unchanged.
func fitImage(img image.Image, maxPixels int) (image.Image, float64) {
	b := img.Bounds()
	pixels := b.Dx() * b.Dy()
	if pixels <= maxPixels || pixels == 0 {
		return img, 1
	}
	factor := math.Sqrt(float64(maxPixels) / float64(pixels))
	w := max(1, int(float64(b.Dx())*factor))
	h := max(1, int(float64(b.Dy())*factor))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(b.Dx())
}

func unscale(r image.Rectangle, factor float64) image.Rectangle {
	if factor == 1 {
		return r
	}
	return image.Rect(
		int(math.Floor(float64(r.Min.X)/factor)),
		int(math.Floor(float64(r.Min.Y)/factor)),
		int(math.Ceil(float64(r.Max.X)/factor)),
		int(math.Ceil(float64(r.Max.Y)/factor)),
	)
}
