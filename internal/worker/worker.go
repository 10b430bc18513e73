// Package worker composes one discovered photo's stages — prepare,
// compress, upload, analyze, match, writeback, organize — into a single
// sequential unit of work, checking for cancellation between every stage
// and converting any stage failure into a WorkerResult rather than
// propagating an error.
//
// This generalizes the teacher's single processFile function
// (internal/indexer/indexer.go) from one monolithic body into an
// explicit stage sequence with typed per-stage error wrapping, per the
// error taxonomy.
package worker

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/racetagger/pipeline/internal/analysis"
	"github.com/racetagger/pipeline/internal/billing"
	"github.com/racetagger/pipeline/internal/catalog"
	"github.com/racetagger/pipeline/internal/cleanup"
	"github.com/racetagger/pipeline/internal/compress"
	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/internal/events"
	"github.com/racetagger/pipeline/internal/matcher"
	"github.com/racetagger/pipeline/internal/metadata"
	"github.com/racetagger/pipeline/internal/organizer"
	"github.com/racetagger/pipeline/internal/phash"
	"github.com/racetagger/pipeline/internal/prepare"
	"github.com/racetagger/pipeline/internal/temporal"
	"github.com/racetagger/pipeline/internal/upload"
	"github.com/racetagger/pipeline/pkg/models"
)

// StageError wraps a stage failure with the file id and stage name, per
// the propagation rule that caught errors convert into a WorkerResult at
// the worker boundary.
type StageError struct {
	FileID string
	Stage  models.StageName
	Cause  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("worker: file %s failed at stage %s: %v", e.FileID, e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Scorer is the narrow slice of *matcher.Matcher the worker actually
// calls, small enough to fake in tests (e.g. to force the fallback path
// with a scorer that panics).
type Scorer interface {
	Match(vehicleIndex int, recognition models.VehicleRecognition, roster []models.Participant, neighbors []matcher.NeighborOutcome) models.MatchResult
}

// Deps bundles every collaborator a Worker needs. One Deps is shared
// read-only across every worker in a batch; the pieces it references
// that carry mutable state (Catalog, Cleanup) already guard their own
// access.
type Deps struct {
	Processor config.ProcessorConfig
	Category  config.SportCategoryConfig

	Matcher   Scorer
	Writer    *metadata.Writer
	Organizer *organizer.Organizer
	Cleanup   *cleanup.Manager
	Catalog   *catalog.Catalog
	Upload    *upload.Client
	Analysis  *analysis.Client
	Billing   billing.Collaborator
	Events    *events.Bus

	Roster    []models.Participant
	HasRoster bool

	ModelName         string
	UserID            string
	ExecutionID       string
	ParticipantPreset string

	// TemporalIndex is installed per batch by the orchestrator. When it
	// is nil, neighbor lookups degrade to "no neighbors" rather than
	// failing.
	TemporalIndex *temporal.Index
}

// IsCancelled is polled between every stage and at the top of Process.
type IsCancelled func() bool

// Worker carries one file through every stage using a fixed set of
// collaborators.
type Worker struct {
	deps Deps
}

// New builds a Worker around deps.
func New(deps Deps) *Worker {
	return &Worker{deps: deps}
}

// Process runs every stage for f in order, stopping at the first
// failure or cancellation. Temporary files it created (other than
// preserved thumbnails/compressed JPEGs) are always reclaimed before
// returning.
func (w *Worker) Process(ctx context.Context, f models.ImageFile, isCancelled IsCancelled) models.WorkerResult {
	result := models.WorkerResult{
		FileID:       f.ID,
		OriginalPath: f.Path,
		Timings:      make(map[models.StageName]time.Duration),
	}
	defer w.deps.Cleanup.ReclaimWorkerTemporaries()

	if isCancelled() {
		return cancel(result)
	}

	stageStart := time.Now()
	img, ts, err := prepare.Prepare(f)
	if err != nil {
		return failure(result, models.StagePreparing, f.ID, err)
	}

	compressed, err := compress.Compress(img, w.deps.Processor.MaxDimension, w.deps.Processor.MaxImageSizeKB*1024)
	if err != nil {
		return failure(result, models.StageCompressing, f.ID, err)
	}
	maxBytes := w.deps.Processor.MaxImageSizeKB * 1024
	if maxBytes > 0 && len(compressed.JPEGBytes) > maxBytes {
		result.CompressionError = &models.CompressionError{
			AchievedBytes: len(compressed.JPEGBytes),
			LimitBytes:    maxBytes,
			Quality:       compressed.Quality,
		}
		fmt.Printf("worker: %s: %v\n", f.Filename, result.CompressionError)
	}

	result.DuplicateOf = w.recordAndCheckDuplicate(f.Path, ts, img)

	if err := w.trackThumbnails(f, compressed); err != nil {
		fmt.Printf("worker: %s: %v\n", f.Filename, err)
	}
	result.Timings[models.StagePreparing] = time.Since(stageStart)

	if isCancelled() {
		return cancel(result)
	}

	stageStart = time.Now()
	mimeType := "image/jpeg"
	storageKey, err := upload.StorageKey(time.Now().UnixMilli(), mimeType)
	if err != nil {
		return failure(result, models.StageUploading, f.ID, err)
	}
	if _, err := w.deps.Upload.Put(ctx, storageKey, compressed.JPEGBytes, mimeType); err != nil {
		return failure(result, models.StageUploading, f.ID, err)
	}
	if w.deps.Events != nil {
		w.deps.Events.Publish(events.TopicImageUploaded, events.ImageUploaded{OriginalFileName: f.Filename, PublicURL: storageKey})
	}
	result.Timings[models.StageUploading] = time.Since(stageStart)

	if isCancelled() {
		return cancel(result)
	}

	stageStart = time.Now()
	recognition, err := w.deps.Analysis.Analyze(ctx, w.deps.Category.ProtocolVersion, analysis.Request{
		StorageKey:        storageKey,
		OriginalFilename:  f.Filename,
		MimeType:          mimeType,
		SizeBytes:         int64(len(compressed.JPEGBytes)),
		ModelName:         w.deps.ModelName,
		Category:          w.deps.Category.Name,
		UserID:            w.deps.UserID,
		ExecutionID:       w.deps.ExecutionID,
		ParticipantPreset: w.deps.ParticipantPreset,
	})
	result.Timings[models.StageAnalyzing] = time.Since(stageStart)
	if err != nil {
		return failure(result, models.StageAnalyzing, f.ID, err)
	}
	billing.Deduct(ctx, w.deps.Billing, w.deps.ExecutionID, recognition.ImageID)
	result.Analysis = []models.RecognitionResult{recognition}

	if isCancelled() {
		return cancel(result)
	}

	stageStart = time.Now()
	filtered := matcher.FilterRecognitions(recognition.Vehicles, w.deps.Category)
	matches := make([]models.MatchResult, len(filtered))
	for i, v := range filtered {
		matches[i] = w.matchVehicle(i, v, f.Path, ts.Timestamp)
		if matches[i].Best != nil {
			_ = w.deps.Catalog.RecordOutcome(f.Path, matches[i].Best.Participant.Numero, matches[i].Best.Confidence)
		}
	}
	result.Matches = matches
	result.Timings[models.StageMatching] = time.Since(stageStart)

	if isCancelled() {
		return cancel(result)
	}

	stageStart = time.Now()
	keywords := metadata.BuildKeywords(matches, filtered, w.deps.Category, w.deps.HasRoster)
	description := metadata.BuildDescription(matches)
	if len(keywords) > 0 || description != "" {
		if err := w.deps.Writer.Write(ctx, f.Path, keywords, description, w.deps.Processor.KeywordsMode, w.deps.Processor.DescriptionMode); err != nil {
			return failure(result, models.StageWriting, f.ID, err)
		}
	}
	result.Timings[models.StageWriting] = time.Since(stageStart)

	if isCancelled() {
		return cancel(result)
	}

	stageStart = time.Now()
	orgResult, err := w.deps.Organizer.Place(organizer.Placement{
		SourcePath:   f.Path,
		Recognitions: filtered,
		Matches:      matches,
		HasRoster:    w.deps.HasRoster,
	})
	if err != nil {
		return failure(result, models.StageOrganizing, f.ID, err)
	}
	if orgResult.UnknownKind == organizer.UnknownNumber {
		result.IsGhostVehicle = result.DuplicateOf == ""
		if w.deps.Events != nil {
			var numbers []string
			for _, v := range filtered {
				if v.HasNumber {
					numbers = append(numbers, v.RaceNumber)
				}
			}
			w.deps.Events.Publish(events.TopicUnknownNumber, events.UnknownNumberEvent{FileName: f.Filename, Numbers: numbers})
		}
	}
	result.Timings[models.StageOrganizing] = time.Since(stageStart)

	result.Success = true
	return result
}

// matchVehicle scores one recognized vehicle, falling back to a pure
// race-number lookup if scoring fails internally (including a panic
// surfaced from a malformed evidence computation).
func (w *Worker) matchVehicle(index int, v models.VehicleRecognition, path string, ts time.Time) (result models.MatchResult) {
	defer func() {
		if r := recover(); r != nil {
			result = matcher.FallbackMatch(v, w.deps.Roster)
		}
	}()
	return w.deps.Matcher.Match(index, v, w.deps.Roster, w.neighborOutcomes(path, ts))
}

func (w *Worker) neighborOutcomes(path string, ts time.Time) []matcher.NeighborOutcome {
	if w.deps.TemporalIndex == nil || w.deps.Catalog == nil {
		return nil
	}
	var out []matcher.NeighborOutcome
	for _, n := range w.deps.TemporalIndex.Neighbors(path, ts) {
		outcomes, err := w.deps.Catalog.OutcomesWithConfidence(n.Path)
		if err != nil {
			continue
		}
		for _, o := range outcomes {
			out = append(out, matcher.NeighborOutcome{Numero: o.Numero, Confidence: o.Confidence})
		}
	}
	return out
}

// recordAndCheckDuplicate computes img's perceptual hash, compares it
// against every temporal neighbor already hashed this batch, and
// records its own hash for later neighbors to compare against. Returns
// the path of the first near-duplicate neighbor found, or "".
func (w *Worker) recordAndCheckDuplicate(path string, ts models.ImageTimestamp, img image.Image) string {
	if w.deps.Catalog == nil {
		return ""
	}
	hash, err := phash.Compute(img)
	if err != nil {
		return ""
	}
	_ = w.deps.Catalog.RecordHash(path, hash)

	if w.deps.TemporalIndex == nil || !ts.HasTimestamp {
		return ""
	}
	for _, n := range w.deps.TemporalIndex.Neighbors(path, ts.Timestamp) {
		neighborHash, ok, err := w.deps.Catalog.HashFor(n.Path)
		if err != nil || !ok {
			continue
		}
		if dup, err := phash.IsDuplicate(hash, neighborHash); err == nil && dup {
			return n.Path
		}
	}
	return ""
}

func (w *Worker) trackThumbnails(f models.ImageFile, compressed compress.Result) error {
	if err := w.deps.Cleanup.EnsureTagDir(cleanup.TagCompressed); err != nil {
		return err
	}
	compressedPath, _ := w.deps.Cleanup.GenerateTempPath(f.ID, "compressed", ".jpg", cleanup.TagCompressed)
	if err := os.WriteFile(compressedPath, compressed.JPEGBytes, 0o644); err != nil {
		return fmt.Errorf("writing compressed working copy: %w", err)
	}

	for size, data := range compressed.Thumbnails {
		tag := cleanup.TagThumbnails
		if size == models.ThumbnailMicro {
			tag = cleanup.TagMicroThumbs
		}
		if err := w.deps.Cleanup.EnsureTagDir(tag); err != nil {
			return err
		}
		path, _ := w.deps.Cleanup.GenerateTempPath(f.ID, string(size), ".jpg", tag)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("writing %s thumbnail: %w", size, err)
		}
	}
	return nil
}

func failure(result models.WorkerResult, stage models.StageName, fileID string, err error) models.WorkerResult {
	stageErr := &StageError{FileID: fileID, Stage: stage, Cause: err}
	result.Success = false
	result.FailedStage = stage
	result.Error = stageErr.Error()
	return result
}

func cancel(result models.WorkerResult) models.WorkerResult {
	result.Cancelled = true
	result.Error = "Processing cancelled by user"
	return result
}
