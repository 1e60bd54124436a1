// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/image/draw"
)

// errUnsupportedImage means the image encoding cannot be edited in place.
var errUnsupportedImage = errors.New("unsupported image encoding")

// jpegQuality is used when re-encoding redacted DCT images.
const jpegQuality = 90

// blankImage blacks out the given pixel areas of an image XObject.
func blankImage(ctx *model.Context, ref types.IndirectRef, pixels []image.Rectangle) error {
	sd, err := streamDict(ctx, ref)
	if err != nil {
		return err
	}

	if mask := sd.Dict.BooleanEntry("ImageMask"); mask != nil && *mask {
		return errUnsupportedImage
	}
	if _, found := sd.Dict.Find("Decode"); found {
		return errUnsupportedImage
	}

	filters := make([]string, len(sd.FilterPipeline))
	for i, f := range sd.FilterPipeline {
		filters[i] = f.Name
	}

	switch {
	case len(filters) == 0, len(filters) == 1 && filters[0] == filter.Flate:
		return blankRawImage(ctx, ref, sd, pixels)
	case len(filters) == 1 && filters[0] == filter.DCT:
		return blankJPEGImage(ctx, ref, sd, pixels)
	default:
		return errUnsupportedImage
	}
}

// replaceWithBlank overwrites an image XObject that cannot be edited with a
// single black DeviceGray pixel. Images are drawn into the unit square, so
// the replacement covers the same area on every page that uses it, and none
// of the original data or its masks stay reachable.
func replaceWithBlank(ctx *model.Context, ref types.IndirectRef) error {
	if _, err := streamDict(ctx, ref); err != nil {
		return err
	}
	d := types.NewDict()
	d.InsertName("Type", "XObject")
	d.InsertName("Subtype", "Image")
	d.InsertInt("Width", 1)
	d.InsertInt("Height", 1)
	d.InsertName("ColorSpace", "DeviceGray")
	d.InsertInt("BitsPerComponent", 8)
	sd, err := flateStream(d, []byte{0})
	if err != nil {
		return err
	}
	return replaceStream(ctx, ref, sd)
}

func blankRawImage(ctx *model.Context, ref types.IndirectRef, sd *types.StreamDict, pixels []image.Rectangle) error {
	if bpc := sd.Dict.IntEntry("BitsPerComponent"); bpc == nil || *bpc != 8 {
		return errUnsupportedImage
	}
	components, black, ok := colorComponents(ctx, sd.Dict)
	if !ok {
		return errUnsupportedImage
	}
	w, h := sd.Dict.IntEntry("Width"), sd.Dict.IntEntry("Height")
	if w == nil || h == nil || *w <= 0 || *h <= 0 {
		return errUnsupportedImage
	}

	var data []byte
	if len(sd.FilterPipeline) == 0 {
		data = append([]byte(nil), sd.Raw...)
	} else {
		if err := sd.Decode(); err != nil {
			return errUnsupportedImage
		}
		data = sd.Content
	}
	stride := *w * components
	if len(data) < stride**h {
		return errUnsupportedImage
	}

	bounds := image.Rect(0, 0, *w, *h)
	for _, r := range pixels {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				copy(data[y*stride+x*components:], black)
			}
		}
	}

	out, err := flateStream(sd.Dict, data)
	if err != nil {
		return err
	}
	return replaceStream(ctx, ref, out)
}

// colorComponents returns the component count of an image's color space and
// the encoding of black in it.
func colorComponents(ctx *model.Context, dict types.Dict) (int, []byte, bool) {
	obj, found := dict.Find("ColorSpace")
	if !found {
		return 0, nil, false
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return 0, nil, false
	}

	n := 0
	switch cs := obj.(type) {
	case types.Name:
		switch cs.Value() {
		case "DeviceGray", "CalGray":
			n = 1
		case "DeviceRGB", "CalRGB":
			n = 3
		case "DeviceCMYK":
			n = 4
		}
	case types.Array:
		if len(cs) == 2 {
			if name, ok := cs[0].(types.Name); ok && name.Value() == "ICCBased" {
				if profile, _, err := ctx.DereferenceStreamDict(cs[1]); err == nil && profile != nil {
					if v := profile.Dict.IntEntry("N"); v != nil {
						n = *v
					}
				}
			}
		}
	}

	switch n {
	case 1, 3:
		return n, make([]byte, n), true
	case 4:
		return 4, []byte{0, 0, 0, 0xff}, true
	default:
		return 0, nil, false
	}
}

func blankJPEGImage(ctx *model.Context, ref types.IndirectRef, sd *types.StreamDict, pixels []image.Rectangle) error {
	img, err := jpeg.Decode(bytes.NewReader(sd.Raw))
	if err != nil {
		return errUnsupportedImage
	}

	var canvas draw.Image
	colorSpace := "DeviceRGB"
	switch src := img.(type) {
	case *image.Gray:
		canvas = src
		colorSpace = "DeviceGray"
	case *image.CMYK:
		return errUnsupportedImage
	default:
		rgba := image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
		canvas = rgba
	}

	black := image.NewUniform(color.Black)
	origin := canvas.Bounds().Min
	for _, r := range pixels {
		draw.Draw(canvas, r.Add(origin).Intersect(canvas.Bounds()), black, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	out := &types.StreamDict{
		Dict:           sd.Dict.Clone().(types.Dict),
		Raw:            buf.Bytes(),
		FilterPipeline: sd.FilterPipeline,
	}
	out.Dict.Update("ColorSpace", types.Name(colorSpace))
	out.Dict.Update("BitsPerComponent", types.Integer(8))
	out.Dict.Delete("DecodeParms")
	setLength(out)
	return replaceStream(ctx, ref, out)
}
