// Package organizer fans a processed image out into destination folders
// keyed by its matched race numbers, copying or moving the file (and its
// XMP sidecar) per the configured pattern and conflict strategy.
package organizer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

// Placement is one image's destination after matching.
type Placement struct {
	SourcePath   string
	Recognitions []models.VehicleRecognition // raw per-vehicle recognition, for the "any number recognized" check
	Matches      []models.MatchResult        // one per recognized vehicle
	HasRoster    bool
}

// Result records where a single image ended up.
type Result struct {
	Destinations []string
	UnknownKind  UnknownKind // empty unless the image landed in an unknown folder
}

// UnknownKind distinguishes why an image had no normal destination.
type UnknownKind string

const (
	// UnknownNone means the image matched normally.
	UnknownNone UnknownKind = ""
	// UnknownGeneric means no race numbers were recognized at all.
	UnknownGeneric UnknownKind = "generic"
	// UnknownNumber means numbers were recognized but none appear in the
	// supplied roster.
	UnknownNumber UnknownKind = "number"
)

// Organizer places processed images into destination folders.
type Organizer struct {
	cfg        config.OrganizerConfig
	sourceRoot string
}

// New builds an Organizer rooted at sourceRoot, resolving destinationPath
// to its default (<sourceRoot>/Organized_Photos) when unset.
func New(cfg config.OrganizerConfig, sourceRoot string) *Organizer {
	if cfg.DestinationPath == "" {
		cfg.DestinationPath = filepath.Join(sourceRoot, "Organized_Photos")
	}
	if cfg.UnknownFolderName == "" {
		cfg.UnknownFolderName = "Unknown_Numbers"
	}
	return &Organizer{cfg: cfg, sourceRoot: sourceRoot}
}

// Place organizes one image, fanning it out to every destination implied
// by its matched vehicles. The last destination uses the configured
// mode (copy/move); every earlier one is always a copy, so the source
// file survives until its final placement.
func (o *Organizer) Place(p Placement) (Result, error) {
	if !o.cfg.Enabled {
		return Result{}, nil
	}

	destFolders, unknown := o.resolveFolders(p)
	if len(destFolders) == 0 {
		return Result{UnknownKind: unknown}, nil
	}

	var placed []string
	for i, folder := range destFolders {
		if err := os.MkdirAll(folder, 0o755); err != nil {
			return Result{Destinations: placed}, fmt.Errorf("organizer: creating destination folder %s: %w", folder, err)
		}

		isLast := i == len(destFolders)-1
		mode := "copy"
		if isLast {
			mode = o.cfg.Mode
		}

		destPath, err := o.place(p.SourcePath, folder, mode)
		if err != nil {
			return Result{Destinations: placed}, fmt.Errorf("organizer: placing %s into %s: %w", p.SourcePath, folder, err)
		}
		if destPath == "" {
			continue // skip strategy declined this placement
		}
		placed = append(placed, destPath)

		if o.cfg.IncludeXMPFiles {
			sidecar := p.SourcePath + ".xmp"
			if _, err := os.Stat(sidecar); err == nil {
				if _, err := o.place(sidecar, folder, mode); err != nil {
					return Result{Destinations: placed}, fmt.Errorf("organizer: placing sidecar for %s: %w", p.SourcePath, err)
				}
			}
		}
	}

	return Result{Destinations: placed}, nil
}

// resolveFolders computes every destination folder this image fans out
// to, or signals why it has none (UnknownGeneric/UnknownNumber).
func (o *Organizer) resolveFolders(p Placement) ([]string, UnknownKind) {
	var matched []models.MatchCandidate
	for _, m := range p.Matches {
		if m.Best != nil {
			matched = append(matched, *m.Best)
		}
	}

	anyRecognizedNumber := false
	for _, r := range p.Recognitions {
		if r.HasNumber {
			anyRecognizedNumber = true
			break
		}
	}

	if !anyRecognizedNumber {
		return []string{filepath.Join(o.cfg.DestinationPath, o.cfg.UnknownFolderName+"_Generic")}, UnknownGeneric
	}

	if p.HasRoster && len(matched) == 0 {
		return []string{filepath.Join(o.cfg.DestinationPath, o.cfg.UnknownFolderName)}, UnknownNumber
	}

	seen := make(map[string]bool)
	var folders []string
	for _, c := range matched {
		name := o.folderName(c.Participant)
		if seen[name] {
			continue
		}
		seen[name] = true
		folders = append(folders, filepath.Join(o.cfg.DestinationPath, name))
	}
	return folders, UnknownNone
}

func (o *Organizer) folderName(p models.Participant) string {
	var base string
	switch o.cfg.Pattern {
	case config.PatternNumberName:
		if len(p.DriverNames) > 0 {
			base = fmt.Sprintf("%s_%s", p.Numero, sanitizeFolderComponent(p.DriverNames[0]))
		} else {
			base = p.Numero
		}
	case config.PatternCustom:
		base = applyCustomPattern(o.cfg.CustomPattern, p)
	default:
		base = p.Numero
	}

	var prefix []string
	for _, f := range []string{p.Folder1, p.Folder2, p.Folder3} {
		if f != "" {
			prefix = append(prefix, sanitizeFolderComponent(f))
		}
	}
	if len(prefix) == 0 {
		return base
	}
	return filepath.Join(filepath.Join(prefix...), base)
}

func applyCustomPattern(pattern string, p models.Participant) string {
	driver := ""
	if len(p.DriverNames) > 0 {
		driver = p.DriverNames[0]
	}
	replacer := strings.NewReplacer(
		"{number}", p.Numero,
		"{driver}", sanitizeFolderComponent(driver),
		"{team}", sanitizeFolderComponent(p.Team),
	)
	out := replacer.Replace(pattern)
	if out == "" {
		return p.Numero
	}
	return out
}

func sanitizeFolderComponent(s string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-")
	return strings.TrimSpace(replacer.Replace(s))
}

// place copies or moves src into destDir, honoring the conflict
// strategy on a name collision. Returns the final destination path, or
// "" if the skip strategy declined the placement.
func (o *Organizer) place(src, destDir, mode string) (string, error) {
	filename := filepath.Base(src)
	destPath := filepath.Join(destDir, filename)

	if _, err := os.Stat(destPath); err == nil {
		switch o.cfg.ConflictStrategy {
		case config.ConflictSkip:
			return "", nil
		case config.ConflictOverwrite:
			// fall through, overwrite in place below
		default: // rename
			destPath = renameForConflict(destDir, filename)
		}
	}

	if mode == "move" {
		if err := os.Rename(src, destPath); err != nil {
			if moveErr := copyThenRemove(src, destPath); moveErr != nil {
				return "", moveErr
			}
		}
		return destPath, nil
	}
	if err := copyFile(src, destPath); err != nil {
		return "", err
	}
	return destPath, nil
}

func renameForConflict(destDir, filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	for counter := 1; counter <= 1000; counter++ {
		candidate := filepath.Join(destDir, fmt.Sprintf("%s-%d%s", base, counter, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(destDir, filename)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// copyThenRemove is os.Rename's fallback across filesystem/volume
// boundaries, where a direct rename returns an error.
func copyThenRemove(src, dest string) error {
	if err := copyFile(src, dest); err != nil {
		return err
	}
	return os.Remove(src)
}
