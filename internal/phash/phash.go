// Package phash computes perceptual hashes and flags near-duplicate
// frames within a temporal cluster (e.g. a photographer firing several
// near-identical frames of the same pass).
package phash

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// Compute returns img's perceptual hash as a stable string, suitable for
// storing alongside a WorkerResult and comparing later with Distance.
func Compute(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("phash: computing hash: %w", err)
	}
	return hash.ToString(), nil
}

// Distance returns the Hamming distance between two hashes produced by
// Compute.
func Distance(a, b string) (int, error) {
	hashA, err := goimagehash.ImageHashFromString(a)
	if err != nil {
		return 0, fmt.Errorf("phash: parsing first hash: %w", err)
	}
	hashB, err := goimagehash.ImageHashFromString(b)
	if err != nil {
		return 0, fmt.Errorf("phash: parsing second hash: %w", err)
	}
	distance, err := hashA.Distance(hashB)
	if err != nil {
		return 0, fmt.Errorf("phash: computing distance: %w", err)
	}
	return distance, nil
}

// DuplicateThreshold is the maximum Hamming distance treated as a
// near-duplicate frame rather than a distinct shot.
const DuplicateThreshold = 10

// IsDuplicate reports whether two hashes are close enough to be
// considered the same moment (burst variations of an otherwise
// identical frame), using DuplicateThreshold.
func IsDuplicate(a, b string) (bool, error) {
	distance, err := Distance(a, b)
	if err != nil {
		return false, err
	}
	return distance <= DuplicateThreshold, nil
}
