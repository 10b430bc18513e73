// Package compress turns a prepared, oriented image into an upload-ready
// JPEG under a configured byte budget, plus two gallery thumbnail tiers.
//
// The resize and JPEG-encode calls follow the teacher's thumbnail
// pipeline (internal/indexer/thumbnail.go, internal/quality/pipeline.go);
// what's new here is the predictive-quality-then-binary-search sizing
// algorithm and the two fixed thumbnail tiers this pipeline's callers
// expect instead of the teacher's four generic ones.
package compress

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"

	"github.com/racetagger/pipeline/pkg/models"
)

// Result is one image's compression output: the upload-ready JPEG plus
// both thumbnail tiers.
type Result struct {
	JPEGBytes  []byte
	Width      int
	Height     int
	Quality    int
	Thumbnails map[models.ThumbnailSize][]byte
}

// Compress resizes img to at most maxDimension on its long edge (never
// enlarging), then searches for the highest JPEG quality whose encoded
// size fits within maxBytes, and finally generates both thumbnail tiers
// from the resized image.
func Compress(img image.Image, maxDimension int, maxBytes int) (Result, error) {
	resized := constrainToDimension(img, maxDimension)

	jpegBytes, quality, err := encodeWithinBudget(resized, maxBytes)
	if err != nil {
		return Result{}, err
	}

	thumbs, err := generateThumbnails(resized)
	if err != nil {
		return Result{}, fmt.Errorf("compress: generating thumbnails: %w", err)
	}

	bounds := resized.Bounds()
	return Result{
		JPEGBytes:  jpegBytes,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Quality:    quality,
		Thumbnails: thumbs,
	}, nil
}

// constrainToDimension shrinks img so neither edge exceeds maxDimension,
// preserving aspect ratio. Images already within bounds are returned
// unchanged — this pipeline never upsamples.
func constrainToDimension(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return img
	}

	var newWidth, newHeight uint
	if width > height {
		newWidth = uint(maxDimension)
	} else {
		newHeight = uint(maxDimension)
	}
	return resize.Resize(newWidth, newHeight, img, resize.Lanczos3)
}

// encodeWithinBudget implements the predictive-quality-then-binary-search
// sizing algorithm: estimate a starting quality from the image's
// megapixel count and the byte budget, try it once, and only fall back to
// a bounded binary search when the single guess misses.
func encodeWithinBudget(img image.Image, maxBytes int) ([]byte, int, error) {
	bounds := img.Bounds()
	megapixels := float64(bounds.Dx()*bounds.Dy()) / 1_000_000
	if megapixels <= 0 {
		megapixels = 0.01
	}

	q0 := int(float64(maxBytes)/(megapixels*10000)*100 + 0.5)
	q0 = clamp(q0, 30, 95)

	data, err := encodeJPEG(img, q0)
	if err != nil {
		return nil, 0, fmt.Errorf("compress: encoding at quality %d: %w", q0, err)
	}
	if len(data) <= maxBytes {
		return data, q0, nil
	}

	lo, hi := 30, q0
	best := data
	bestQuality := q0
	found := false

	for i := 0; i < 4 && lo <= hi; i++ {
		mid := (lo + hi) / 2
		candidate, err := encodeJPEG(img, mid)
		if err != nil {
			return nil, 0, fmt.Errorf("compress: encoding at quality %d: %w", mid, err)
		}
		if len(candidate) <= maxBytes {
			best = candidate
			bestQuality = mid
			found = true
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if !found {
		// Nothing fit even at the floor; return the smallest attempt made
		// (quality 30) so the caller can still proceed and flag it.
		floorData, err := encodeJPEG(img, 30)
		if err != nil {
			return nil, 0, fmt.Errorf("compress: encoding at floor quality: %w", err)
		}
		return floorData, 30, nil
	}

	return best, bestQuality, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// generateThumbnails produces the card (280x280, fit=inside) and micro
// (32x32, fit=cover, centered) tiers from an already-resized image.
func generateThumbnails(img image.Image) (map[models.ThumbnailSize][]byte, error) {
	thumbs := make(map[models.ThumbnailSize][]byte)

	card := resize.Thumbnail(280, 280, img, resize.Lanczos3)
	cardBytes, err := encodeJPEG(card, 85)
	if err != nil {
		return nil, fmt.Errorf("encoding card thumbnail: %w", err)
	}
	thumbs[models.ThumbnailCard] = cardBytes

	micro := fitCover(img, 32, 32)
	microBytes, err := encodeJPEG(micro, 70)
	if err != nil {
		return nil, fmt.Errorf("encoding micro thumbnail: %w", err)
	}
	thumbs[models.ThumbnailMicro] = microBytes

	return thumbs, nil
}

// fitCover resizes img so it fully covers a width x height box, then
// crops the centered width x height region out of it.
func fitCover(img image.Image, width, height int) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return img
	}

	scale := float64(width) / float64(srcW)
	if alt := float64(height) / float64(srcH); alt > scale {
		scale = alt
	}

	scaledW := uint(float64(srcW)*scale + 0.5)
	scaledH := uint(float64(srcH)*scale + 0.5)
	if scaledW < uint(width) {
		scaledW = uint(width)
	}
	if scaledH < uint(height) {
		scaledH = uint(height)
	}

	scaled := resize.Resize(scaledW, scaledH, img, resize.Lanczos3)

	offsetX := (int(scaledW) - width) / 2
	offsetY := (int(scaledH) - height) / 2

	cropRect := image.Rect(offsetX, offsetY, offsetX+width, offsetY+height)
	cropped := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cropped.Set(x, y, scaled.At(cropRect.Min.X+x, cropRect.Min.Y+y))
		}
	}
	return cropped
}
