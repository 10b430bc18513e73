// Package metadata composes and writes keyword/description metadata for
// a processed image: via external exiftool for raster formats (JPEG,
// TIFF, PNG, WebP), via an XMP sidecar for RAW formats and as a fallback
// when exiftool fails.
package metadata

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/internal/prepare"
)

// Timeout bounds a single exiftool invocation.
const Timeout = 15 * time.Second

// Writer writes composed keywords/description into an image's metadata,
// choosing exiftool or an XMP sidecar depending on format.
type Writer struct {
	// VendorRoot holds bundled platform-specific exiftool binaries,
	// used only when "exiftool" isn't found on PATH.
	VendorRoot string
}

// NewWriter builds a Writer that looks for bundled binaries under root.
func NewWriter(vendorRoot string) *Writer {
	return &Writer{VendorRoot: vendorRoot}
}

// Write applies keywords and description to path, following the format
// and mode rules from the spec: exiftool for raster formats (falling
// back to an XMP sidecar if exiftool fails), an XMP sidecar for RAW.
func (w *Writer) Write(ctx context.Context, path string, keywords []string, description string, keywordsMode, descriptionMode config.MetadataMode) error {
	ext := strings.ToLower(filepath.Ext(path))

	if prepare.IsRaw(ext) {
		return w.writeSidecar(path, keywords, description, keywordsMode, descriptionMode)
	}

	if err := w.writeViaExiftool(ctx, path, keywords, description, keywordsMode, descriptionMode); err != nil {
		if sidecarErr := w.writeSidecar(path, keywords, description, keywordsMode, descriptionMode); sidecarErr != nil {
			return fmt.Errorf("metadata: exiftool failed (%v) and sidecar fallback also failed: %w", err, sidecarErr)
		}
		return nil
	}
	return nil
}

func (w *Writer) writeViaExiftool(ctx context.Context, path string, keywords []string, description string, keywordsMode, descriptionMode config.MetadataMode) error {
	binary, err := w.resolveBinary()
	if err != nil {
		return err
	}

	finalKeywords := keywords
	if keywordsMode == config.MetadataAppend {
		existing, err := w.readExistingKeywords(ctx, binary, path)
		if err == nil {
			finalKeywords = MergeKeywords(existing, keywords, config.MetadataAppend)
		}
	}

	finalDescription := description
	if descriptionMode == config.MetadataAppend {
		existing, err := w.readExistingDescription(ctx, binary, path)
		if err == nil && existing != "" && description != "" {
			finalDescription = existing + " | " + description
		} else if existing != "" && description == "" {
			finalDescription = existing
		}
	}

	args := []string{"-overwrite_original", "-P"}
	args = append(args, "-IPTC:Keywords=", "-XMP:Subject=")
	for _, k := range finalKeywords {
		args = append(args, fmt.Sprintf("-IPTC:Keywords=%s", k), fmt.Sprintf("-XMP:Subject=%s", k))
	}
	if finalDescription != "" {
		args = append(args,
			fmt.Sprintf("-IPTC:Caption-Abstract=%s", finalDescription),
			fmt.Sprintf("-XMP:Description=%s", finalDescription),
			fmt.Sprintf("-EXIF:ImageDescription=%s", finalDescription),
		)
	}
	args = append(args, path)

	timeoutCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("exiftool write failed: %w, output: %s", err, output)
	}
	return nil
}

func (w *Writer) readExistingKeywords(ctx context.Context, binary, path string) ([]string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, binary, "-IPTC:Keywords", "-S", "-s3", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exiftool read keywords failed: %w", err)
	}

	var existing []string
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			existing = append(existing, line)
		}
	}
	return existing, nil
}

func (w *Writer) readExistingDescription(ctx context.Context, binary, path string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, binary, "-IPTC:Caption-Abstract", "-S", "-s3", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("exiftool read description failed: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// resolveBinary finds exiftool on PATH, else a bundled binary under
// VendorRoot/<goos>_<goarch>/exiftool.
func (w *Writer) resolveBinary() (string, error) {
	if path, err := exec.LookPath("exiftool"); err == nil {
		return path, nil
	}
	if w.VendorRoot == "" {
		return "", fmt.Errorf("metadata: exiftool not found on PATH and no vendor root configured")
	}
	candidate := filepath.Join(w.VendorRoot, fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH), exiftoolBinaryName())
	if _, err := os.Stat(candidate); err != nil {
		return "", fmt.Errorf("metadata: no bundled exiftool at %s: %w", candidate, err)
	}
	return candidate, nil
}

func exiftoolBinaryName() string {
	if runtime.GOOS == "windows" {
		return "exiftool.exe"
	}
	return "exiftool"
}

// writeSidecar creates or updates a <path>.xmp file alongside path,
// never touching the original. In append mode the keywords and
// description of an existing sidecar are read back and merged with the
// new values; in overwrite mode the new values replace them.
func (w *Writer) writeSidecar(path string, keywords []string, description string, keywordsMode, descriptionMode config.MetadataMode) error {
	sidecarPath := path + ".xmp"

	finalKeywords := keywords
	if keywordsMode == config.MetadataAppend {
		if existing, err := readSidecarKeywords(sidecarPath); err == nil {
			finalKeywords = MergeKeywords(existing, keywords, config.MetadataAppend)
		}
	}

	finalDescription := description
	if descriptionMode == config.MetadataAppend {
		if existing, err := readSidecarDescription(sidecarPath); err == nil && existing != "" {
			if description != "" {
				finalDescription = existing + " | " + description
			} else {
				finalDescription = existing
			}
		}
	}

	xml := renderXMP(finalKeywords, finalDescription)
	if err := os.WriteFile(sidecarPath, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("metadata: writing XMP sidecar: %w", err)
	}
	return nil
}

func renderXMP(keywords []string, description string) string {
	var subject strings.Builder
	for _, k := range keywords {
		subject.WriteString("      <rdf:li>")
		subject.WriteString(xmlEscape(k))
		subject.WriteString("</rdf:li>\n")
	}

	return fmt.Sprintf(`<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about=""
        xmlns:dc="http://purl.org/dc/elements/1.1/">
      <dc:subject>
        <rdf:Seq>
%s        </rdf:Seq>
      </dc:subject>
      <dc:description>
        <rdf:Alt>
          <rdf:li xml:lang="x-default">%s</rdf:li>
        </rdf:Alt>
      </dc:description>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>
`, subject.String(), xmlEscape(description))
}

func xmlEscape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}

// readSidecarKeywords and readSidecarDescription do a minimal extraction
// from a previously-written sidecar for append-mode merging; they're not
// general XMP parsers, only readers of the shape renderXMP produces.
func readSidecarKeywords(sidecarPath string) ([]string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, err
	}
	content := string(data)
	start := strings.Index(content, "<rdf:Seq>")
	end := strings.Index(content, "</rdf:Seq>")
	if start == -1 || end == -1 || end < start {
		return nil, nil
	}
	block := content[start+len("<rdf:Seq>") : end]

	var out []string
	for _, line := range strings.Split(block, "<rdf:li>") {
		if idx := strings.Index(line, "</rdf:li>"); idx >= 0 {
			out = append(out, xmlUnescape(line[:idx]))
		}
	}
	return out, nil
}

func readSidecarDescription(sidecarPath string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}
	content := string(data)
	marker := `xml:lang="x-default">`
	start := strings.Index(content, marker)
	if start == -1 {
		return "", nil
	}
	start += len(marker)
	end := strings.Index(content[start:], "</rdf:li>")
	if end == -1 {
		return "", nil
	}
	return xmlUnescape(strings.TrimSpace(content[start : start+end])), nil
}

func xmlUnescape(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
	)
	return replacer.Replace(s)
}
