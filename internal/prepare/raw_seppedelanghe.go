//go:build cgo && use_seppedelanghe_libraw

package prepare

import (
	"fmt"
	"image"
	"log"
	"path/filepath"

	golibraw "github.com/seppedelanghe/go-libraw"
)

const libRawImpl = "seppedelanghe/go-libraw"

// decodeRaw demosaics a RAW file via LibRaw, falling back to the file's
// embedded JPEG preview when the decode comes back entirely black — a
// known LibRaw issue with JPEG-compressed monochrome DNGs.
func decodeRaw(path string) (image.Image, error) {
	basename := filepath.Base(path)

	processor := golibraw.NewProcessor(golibraw.ProcessorOptions{
		UserQual:    3,
		OutputBps:   8,
		OutputColor: golibraw.SRGB,
		UseCameraWb: true,
	})

	img, _, err := processor.ProcessRaw(path)
	if err != nil {
		log.Printf("[raw] libraw decode failed for %s: %v, trying embedded preview", basename, err)
		jpegImg, jpegErr := extractEmbeddedJPEG(path)
		if jpegErr == nil {
			return jpegImg, nil
		}
		return nil, fmt.Errorf("libraw decode failed: %w (embedded jpeg: %v)", err, jpegErr)
	}

	if isBlackImage(img) {
		log.Printf("[raw] libraw returned a black image for %s, trying embedded preview", basename)
		if jpegImg, jpegErr := extractEmbeddedJPEG(path); jpegErr == nil {
			return jpegImg, nil
		}
	}

	return img, nil
}

func rawSupported() bool { return true }

// isBlackImage samples a 10x10 grid of pixels and reports whether fewer
// than 5% of them are above-black brightness.
func isBlackImage(img image.Image) bool {
	bounds := img.Bounds()
	sampleCount := 0
	brightPixels := 0

	stepX := bounds.Dx() / 10
	stepY := bounds.Dy() / 10
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	for y := bounds.Min.Y; y < bounds.Max.Y && sampleCount < 100; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X && sampleCount < 100; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			gray := (r + g + b) / 3 / 256
			if gray > 5 {
				brightPixels++
			}
			sampleCount++
		}
	}

	return brightPixels < 5
}
