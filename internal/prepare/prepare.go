// Package prepare turns one discovered source photo into a decoded,
// correctly oriented image plus the timestamp the rest of the pipeline
// needs for temporal clustering.
//
// RAW files are demosaiced through a cgo LibRaw binding (two interchangeable
// bindings are supported behind build tags, mirroring the teacher's own
// dual-implementation RAW decoder); when LibRaw is unavailable or fails,
// the largest embedded JPEG preview is extracted directly from the RAW
// container's byte stream. Plain raster files (JPEG, PNG, BMP, TIFF, WebP)
// decode through the standard library's image.Decode, with BMP, TIFF and
// WebP support registered via golang.org/x/image.
package prepare

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	exif "github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/racetagger/pipeline/pkg/models"
)

// rawExtensions lists file extensions this package treats as RAW
// containers requiring LibRaw (or embedded-preview fallback) rather than
// stdlib image decoding.
var rawExtensions = map[string]bool{
	".dng": true, ".cr2": true, ".cr3": true, ".nef": true,
	".arw": true, ".raw": true, ".orf": true, ".rw2": true,
}

// IsRaw reports whether ext (including the leading dot, any case) names a
// RAW container this package knows how to handle.
func IsRaw(ext string) bool {
	return rawExtensions[strings.ToLower(ext)]
}

// RawSupported reports whether this build was compiled with cgo LibRaw
// support. When false, RAW files fall back to embedded-preview extraction
// only.
func RawSupported() bool {
	return rawSupported()
}

// LibRawImplementation names the active LibRaw binding, for diagnostics.
func LibRawImplementation() string {
	return libRawImpl
}

// Prepare decodes f, applies any EXIF orientation correction, and
// extracts the best available capture timestamp. It never mutates the
// original file.
func Prepare(f models.ImageFile) (image.Image, models.ImageTimestamp, error) {
	img, err := decode(f)
	if err != nil {
		return nil, models.ImageTimestamp{Path: f.Path}, err
	}

	ts := extractTimestamp(f.Path)

	orientation := readOrientation(f.Path)
	if oriented, applied := applyOrientation(img, orientation); applied {
		img = oriented
	}

	return img, ts, nil
}

func decode(f models.ImageFile) (image.Image, error) {
	if f.IsRaw {
		img, err := decodeRaw(f.Path)
		if err == nil {
			return img, nil
		}
		embedded, embedErr := extractEmbeddedJPEG(f.Path)
		if embedErr == nil {
			return embedded, nil
		}
		return nil, fmt.Errorf("prepare: decoding %s: raw decode failed (%v), embedded preview failed (%v)", f.Path, err, embedErr)
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("prepare: opening %s: %w", f.Path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("prepare: decoding %s: %w", f.Path, err)
	}
	return img, nil
}

// extractEmbeddedJPEG scans a RAW container's raw bytes for the largest
// valid embedded JPEG preview, verifying each candidate actually decodes
// before accepting it.
func extractEmbeddedJPEG(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var largest []byte
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0xFF || data[i+1] != 0xD8 {
			continue
		}
		start := i
		for j := start + 2; j < len(data)-1; j++ {
			if data[j] != 0xFF || data[j+1] != 0xD9 {
				continue
			}
			end := j + 2
			candidate := data[start:end]
			if len(candidate) > len(largest) {
				if _, decErr := jpeg.DecodeConfig(bytes.NewReader(candidate)); decErr == nil {
					largest = candidate
				}
			}
			i = end - 1
			break
		}
	}

	if largest == nil {
		return nil, fmt.Errorf("no valid embedded JPEG preview found in %s", filepath.Base(path))
	}

	img, err := jpeg.Decode(bytes.NewReader(largest))
	if err != nil {
		return nil, fmt.Errorf("decoding embedded preview: %w", err)
	}
	return img, nil
}

// readOrientation returns a file's EXIF Orientation tag, or 1 (no
// transform) when it's missing or unreadable.
func readOrientation(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 1
	}
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 1
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 1
	}
	for _, entry := range entries {
		if entry.TagName != "Orientation" || entry.Value == nil {
			continue
		}
		if v, ok := entry.Value.([]uint16); ok && len(v) > 0 {
			return int(v[0])
		}
	}
	return 1
}

// ExtractTimestamp reads just path's timestamp (EXIF or filesystem
// fallback) without decoding pixel data, for the orchestrator's
// pre-recognition clustering pass over the whole batch.
func ExtractTimestamp(path string) models.ImageTimestamp {
	return extractTimestamp(path)
}

// extractTimestamp prefers EXIF DateTimeOriginal, then EXIF DateTime,
// falling back to the file's modification time when neither is present
// or parseable.
func extractTimestamp(path string) models.ImageTimestamp {
	if t, ok := exifTimestamp(path); ok {
		return models.ImageTimestamp{Path: path, Timestamp: t, HasTimestamp: true, Source: models.TimestampSourceEXIF}
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.ImageTimestamp{Path: path, HasTimestamp: false}
	}
	return models.ImageTimestamp{
		Path:         path,
		Timestamp:    info.ModTime(),
		HasTimestamp: true,
		Source:       models.TimestampSourceFilesystem,
	}
}

func exifTimestamp(path string) (time.Time, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return time.Time{}, false
	}
	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return time.Time{}, false
	}

	var fallback time.Time
	for _, entry := range entries {
		if entry.Value == nil {
			continue
		}
		dateStr, ok := entry.Value.(string)
		if !ok {
			continue
		}
		switch entry.TagName {
		case "DateTimeOriginal":
			if t, err := parseExifDateTime(dateStr); err == nil {
				return t, true
			}
		case "DateTime":
			if t, err := parseExifDateTime(dateStr); err == nil && fallback.IsZero() {
				fallback = t
			}
		}
	}
	if !fallback.IsZero() {
		return fallback, true
	}
	return time.Time{}, false
}

var exifDateFormats = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
	"2006:01:02",
	"2006-01-02",
}

func parseExifDateTime(s string) (time.Time, error) {
	s = strings.Trim(s, "\x00 ")
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}
	for _, format := range exifDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// applyOrientation mirrors the teacher's manual NRGBA pixel remap for EXIF
// orientations 2-8; orientation 1 (or anything out of range) is a no-op.
func applyOrientation(img image.Image, orientation int) (image.Image, bool) {
	if orientation < 2 || orientation > 8 {
		return img, false
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	var result *image.NRGBA

	switch orientation {
	case 2:
		result = image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(width-1-x, y, img.At(x, y))
			}
		}
	case 3:
		result = image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(width-1-x, height-1-y, img.At(x, y))
			}
		}
	case 4:
		result = image.NewNRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(x, height-1-y, img.At(x, y))
			}
		}
	case 5:
		result = image.NewNRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(y, x, img.At(x, y))
			}
		}
	case 6:
		result = image.NewNRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(height-1-y, x, img.At(x, y))
			}
		}
	case 7:
		result = image.NewNRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(height-1-y, width-1-x, img.At(x, y))
			}
		}
	case 8:
		result = image.NewNRGBA(image.Rect(0, 0, height, width))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result.Set(y, width-1-x, img.At(x, y))
			}
		}
	default:
		return img, false
	}

	return result, true
}
