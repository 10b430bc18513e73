//go:build cgo && !use_seppedelanghe_libraw

package prepare

import (
	"fmt"
	"image"

	golibraw "github.com/inokone/golibraw"
)

// libRawImpl identifies which LibRaw binding this build was compiled with.
const libRawImpl = "inokone/golibraw"

// decodeRaw fully demosaics a RAW file via LibRaw.
func decodeRaw(path string) (image.Image, error) {
	img, err := golibraw.ImportRaw(path)
	if err != nil {
		return nil, fmt.Errorf("libraw decode failed: %w", err)
	}
	return img, nil
}

func rawSupported() bool { return true }
