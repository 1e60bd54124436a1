// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package rasterizer renders single PDF pages to images.
package rasterizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"obscura/internal/observability"
	"obscura/internal/resilience"
)

const (
	// DefaultCommand is the poppler page renderer.
	DefaultCommand = "pdftoppm"

	// DefaultTimeout bounds one page render.
	DefaultTimeout = 2 * time.Minute

	MinDPI = 72
	MaxDPI = 1200
)

// ErrUnavailable is returned when the render command cannot be found.
var ErrUnavailable = errors.New("rasterizer unavailable")

// Rasterizer renders page n (1-based) of a PDF at the given resolution. The
// image covers the page's crop box with the page rotation applied, one pixel
// per 1/dpi inch.
type Rasterizer interface {
	RasterizePage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)
}

// Func adapts a function to the Rasterizer interface.
type Func func(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error)

// RasterizePage calls f.
func (f Func) RasterizePage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	return f(ctx, pdfPath, page, dpi)
}

// Config configures the poppler rasterizer.
type Config struct {
	Command string
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Poppler runs pdftoppm once per page.
type Poppler struct {
	config   Config
	observer *observability.StandardObserver
}

// NewPoppler creates a rasterizer, filling zero config fields with defaults.
func NewPoppler(config Config, observer *observability.StandardObserver) *Poppler {
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Retry.Multiplier == 0 {
		config.Retry = resilience.DefaultRetryConfig()
	}
	return &Poppler{config: config, observer: observer}
}

// GetComponentName returns the component name for observability
func (p *Poppler) GetComponentName() string {
	return "rasterizer"
}

// Available reports whether the render command can be found.
func (p *Poppler) Available() bool {
	_, err := exec.LookPath(p.config.Command)
	return err == nil
}

// RasterizePage renders one page. A killed or timed-out render is retried;
// a render that rejects the input is not.
func (p *Poppler) RasterizePage(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	if page < 1 {
		return nil, fmt.Errorf("invalid page number %d", page)
	}
	if dpi < MinDPI || dpi > MaxDPI {
		return nil, fmt.Errorf("invalid DPI %d: must be between %d and %d", dpi, MinDPI, MaxDPI)
	}

	finishTiming := p.observer.StartTiming(p.GetComponentName(), "rasterize_page", pdfPath)

	retry := p.config.Retry
	retry.OnRetry = func(attempt int, err error) {
		p.observer.Warn(p.GetComponentName(), "rasterize_retry", pdfPath, err, map[string]interface{}{
			"page":    page,
			"attempt": attempt,
		})
	}

	img, err := resilience.RetryWithResult(ctx, retry, func(ctx context.Context) (image.Image, error) {
		return p.render(ctx, pdfPath, page, dpi)
	})
	finishTiming(err == nil, map[string]interface{}{"page": page, "dpi": dpi})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (p *Poppler) render(ctx context.Context, pdfPath string, page, dpi int) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	n := strconv.Itoa(page)
	// without an output root, -singlefile writes the image to stdout
	cmd := exec.CommandContext(ctx, p.config.Command,
		"-f", n, "-l", n,
		"-r", strconv.Itoa(dpi),
		"-cropbox", "-png", "-singlefile",
		pdfPath)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, p.config.Command, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rendering page %d timed out: %w", page, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("rendering page %d failed: %w: %s", page, err, msg)
		}
		return nil, fmt.Errorf("rendering page %d failed: %w", page, err)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, resilience.NewPermanentError(fmt.Sprintf("rendering page %d produced no image", page), err)
	}
	return img, nil
}
