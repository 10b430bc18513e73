package phash

import (
	"image"
	"image/color"
	"testing"
)

func gradientImage(w, h int, seed uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x) + seed, G: uint8(y) + seed, B: 128, A: 255})
		}
	}
	return img
}

func TestComputeAndDistanceIdenticalImages(t *testing.T) {
	img := gradientImage(64, 64, 0)
	hashA, err := Compute(img)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	hashB, err := Compute(img)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	distance, err := Distance(hashA, hashB)
	if err != nil {
		t.Fatalf("Distance: %v", err)
	}
	if distance != 0 {
		t.Errorf("expected 0 distance for identical images, got %d", distance)
	}

	dup, err := IsDuplicate(hashA, hashB)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("expected identical images to be flagged as duplicates")
	}
}

func TestDistinctImagesAreNotDuplicates(t *testing.T) {
	imgA := gradientImage(64, 64, 0)
	imgB := gradientImage(64, 64, 200)

	hashA, err := Compute(imgA)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	hashB, err := Compute(imgB)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	dup, err := IsDuplicate(hashA, hashB)
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("expected visually distinct images not to be flagged as duplicates")
	}
}
