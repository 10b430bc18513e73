package compress

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/racetagger/pipeline/pkg/models"
)

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// A gradient gives the encoder something to actually compress,
			// unlike a flat fill which would trivially hit any quality.
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	return img
}

func TestCompressRespectsMaxDimension(t *testing.T) {
	img := solidImage(4000, 2000)
	result, err := Compress(img, 2048, 500*1024)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if result.Width > 2048 || result.Height > 2048 {
		t.Errorf("expected dimensions within 2048, got %dx%d", result.Width, result.Height)
	}
	if result.Width != 2048 {
		t.Errorf("expected long edge resized to 2048, got %d", result.Width)
	}
}

func TestCompressNeverUpsamples(t *testing.T) {
	img := solidImage(100, 80)
	result, err := Compress(img, 2048, 500*1024)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if result.Width != 100 || result.Height != 80 {
		t.Errorf("expected original dimensions preserved, got %dx%d", result.Width, result.Height)
	}
}

func TestCompressStaysUnderByteBudget(t *testing.T) {
	img := solidImage(3000, 2000)
	budget := 50 * 1024
	result, err := Compress(img, 2048, budget)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(result.JPEGBytes) > budget {
		t.Errorf("expected result within %d bytes, got %d at quality %d", budget, len(result.JPEGBytes), result.Quality)
	}
}

func TestCompressProducesBothThumbnailTiers(t *testing.T) {
	img := solidImage(800, 600)
	result, err := Compress(img, 2048, 500*1024)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	card, ok := result.Thumbnails[models.ThumbnailCard]
	if !ok || len(card) == 0 {
		t.Fatal("expected a non-empty card thumbnail")
	}
	micro, ok := result.Thumbnails[models.ThumbnailMicro]
	if !ok || len(micro) == 0 {
		t.Fatal("expected a non-empty micro thumbnail")
	}

	cardImg, err := jpeg.Decode(bytes.NewReader(card))
	if err != nil {
		t.Fatalf("decoding card thumbnail: %v", err)
	}
	if b := cardImg.Bounds(); b.Dx() > 280 || b.Dy() > 280 {
		t.Errorf("expected card thumbnail to fit within 280x280, got %dx%d", b.Dx(), b.Dy())
	}

	microImg, err := jpeg.Decode(bytes.NewReader(micro))
	if err != nil {
		t.Fatalf("decoding micro thumbnail: %v", err)
	}
	if b := microImg.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("expected micro thumbnail to be exactly 32x32, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestFitCoverProducesExactDimensions(t *testing.T) {
	img := solidImage(50, 200) // tall portrait
	cropped := fitCover(img, 32, 32)
	bounds := cropped.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Errorf("expected exactly 32x32, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}
