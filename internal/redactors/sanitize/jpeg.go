// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package sanitize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// JPEG markers
const (
	markerSOI  = 0xD8
	markerSOS  = 0xDA
	markerEOI  = 0xD9
	markerAPP1 = 0xE1 // EXIF, XMP
	markerAPPD = 0xED // Photoshop IRB, IPTC
	markerCOM  = 0xFE
)

var errMalformedJPEG = errors.New("malformed JPEG")

// exifWalker collects EXIF field names.
type exifWalker struct {
	names []string
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag != nil {
		w.names = append(w.names, string(name))
	}
	return nil
}

// exifFieldNames lists the EXIF fields carried by a JPEG, nil when it has
// none.
func exifFieldNames(data []byte) []string {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	w := &exifWalker{}
	if err := x.Walk(w); err != nil {
		return nil
	}
	sort.Strings(w.names)
	return w.names
}

// stripJPEGMetadata copies a JPEG without its APP1, APP13 and comment
// segments. The entropy-coded data after the first SOS is copied verbatim.
// It returns the number of segments removed.
func stripJPEGMetadata(data []byte) ([]byte, int, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, 0, errMalformedJPEG
	}

	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)
	removed := 0
	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, 0, errMalformedJPEG
		}
		// fill bytes
		for i < len(data) && data[i] == 0xFF {
			i++
		}
		if i >= len(data) {
			return nil, 0, errMalformedJPEG
		}
		marker := data[i]
		i++

		if marker == markerEOI || (marker >= 0xD0 && marker <= 0xD7) {
			out = append(out, 0xFF, marker)
			continue
		}
		if i+2 > len(data) {
			return nil, 0, errMalformedJPEG
		}
		length := int(binary.BigEndian.Uint16(data[i:]))
		if length < 2 || i+length > len(data) {
			return nil, 0, errMalformedJPEG
		}
		segment := data[i : i+length]
		i += length

		if marker == markerSOS {
			out = append(out, 0xFF, marker)
			out = append(out, segment...)
			out = append(out, data[i:]...)
			return out, removed, nil
		}
		switch marker {
		case markerAPP1, markerAPPD, markerCOM:
			removed++
			continue
		}
		out = append(out, 0xFF, marker)
		out = append(out, segment...)
	}
	return out, removed, nil
}
