//go:build !cgo

package prepare

import (
	"errors"
	"image"
)

const libRawImpl = "disabled (cgo required)"

func decodeRaw(path string) (image.Image, error) {
	return nil, errors.New("RAW decoding requires a cgo build with LibRaw")
}

func rawSupported() bool { return false }
