package prepare

import (
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/racetagger/pipeline/pkg/models"
)

func TestIsRawDetectsKnownExtensions(t *testing.T) {
	cases := map[string]bool{
		".DNG": true, ".cr2": true, ".nef": true, ".raw": true, ".raf": false, ".jpg": false, ".png": false, "": false,
	}
	for ext, want := range cases {
		if got := IsRaw(ext); got != want {
			t.Errorf("IsRaw(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestApplyOrientationFlipHorizontal(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{B: 255, A: 255})

	flipped, applied := applyOrientation(img, 2)
	if !applied {
		t.Fatal("expected orientation 2 to be applied")
	}
	r, _, _, _ := flipped.At(0, 0).RGBA()
	_, _, b, _ := flipped.At(1, 0).RGBA()
	if r == 0 {
		t.Error("expected red pixel to move to x=0 after horizontal flip")
	}
	if b == 0 {
		t.Error("expected blue pixel to move to x=1 after horizontal flip")
	}
}

func TestApplyOrientationNoopForIdentity(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	out, applied := applyOrientation(img, 1)
	if applied {
		t.Error("expected orientation 1 to be a no-op")
	}
	if out != img {
		t.Error("expected the same image returned unmodified")
	}
}

func TestApplyOrientationRotate90Swaps(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	rotated, applied := applyOrientation(img, 6)
	if !applied {
		t.Fatal("expected orientation 6 to be applied")
	}
	bounds := rotated.Bounds()
	if bounds.Dx() != 2 || bounds.Dy() != 4 {
		t.Errorf("expected dimensions swapped to 2x4, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestExtractTimestampFallsBackToModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.jpg")
	writeSolidJPEG(t, path, 4, 4)

	ts := extractTimestamp(path)
	if !ts.HasTimestamp {
		t.Fatal("expected a filesystem-derived timestamp")
	}
	if ts.Source != models.TimestampSourceFilesystem {
		t.Errorf("expected filesystem source, got %s", ts.Source)
	}
}

func TestPrepareDecodesPlainJPEG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.jpg")
	writeSolidJPEG(t, path, 8, 6)

	img, ts, err := Prepare(models.ImageFile{Path: path, IsRaw: false, Extension: ".jpg"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 8 || bounds.Dy() != 6 {
		t.Errorf("expected 8x6 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if !ts.HasTimestamp {
		t.Error("expected a fallback timestamp for an EXIF-less JPEG")
	}
}

func writeSolidJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating fixture: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
}
