// Package models defines the core data structures shared across the race
// photo batch pipeline: file discovery, image preparation, the participant
// roster, recognition results, matching, and worker/batch bookkeeping.
package models

import (
	"fmt"
	"time"
)

// ThumbnailSize identifies a generated thumbnail tier by its role.
type ThumbnailSize string

const (
	ThumbnailCard  ThumbnailSize = "card"  // 280x280, fit=inside, gallery cards
	ThumbnailMicro ThumbnailSize = "micro" // 32x32, fit=cover, list rows
)

// ImageFile describes one discovered source photo before processing.
type ImageFile struct {
	ID        string // stable id, unique within the batch
	Path      string // original path, never mutated
	Filename  string
	IsRaw     bool
	Extension string // lowercase, including leading dot
}

// PreparedImage is the result of worker stage 2: an upload-ready JPEG plus
// thumbnails, derived from an ImageFile without touching the original.
type PreparedImage struct {
	UploadJPEGBytes  []byte
	Width            int
	Height           int
	MimeType         string
	Thumbnails       map[ThumbnailSize][]byte
	OrientationFixed bool
	Quality          int
	PerceptualHash   string
}

// TimestampSource records where an ImageTimestamp's value came from.
type TimestampSource string

const (
	TimestampSourceEXIF       TimestampSource = "exif"
	TimestampSourceFilesystem TimestampSource = "filesystem"
)

// ImageTimestamp is the temporal-clustering input for one file.
type ImageTimestamp struct {
	Path               string
	Timestamp          time.Time
	HasTimestamp       bool
	SubsecondPrecision bool
	Source             TimestampSource
}

// TemporalCluster is one burst of temporally adjacent images.
type TemporalCluster struct {
	Images        []ImageTimestamp
	MaxGap        time.Duration
	SportCategory string
	IsBurst       bool
}

// Participant is one roster row. Numero is the lookup key but is not
// guaranteed unique; at least one identifying field must be non-empty.
type Participant struct {
	Numero      string
	DriverNames []string // nome_pilota, nome_navigatore, nome_terzo, nome_quarto, or legacy nome
	Team        string   // squadra
	Sponsors    []string
	Metatag     string
	Folder1     string
	Folder2     string
	Folder3     string
	Overflow    map[string]string // unrecognized roster columns
}

// BoundingBox is an optional detection box (protocol v3+ only).
type BoundingBox struct {
	X, Y, Width, Height float64
}

// VehicleRecognition is one detected vehicle within a RecognitionResult.
type VehicleRecognition struct {
	RaceNumber string // meaningful only if HasNumber
	HasNumber  bool
	Drivers    []string
	Team       string
	Category   string
	OtherText  string
	Confidence float64
	Plate      string
	HasPlate   bool
	Box        *BoundingBox
}

// RecognitionResult is the Analysis Client's response for one image.
type RecognitionResult struct {
	Success  bool
	ImageID  string
	Vehicles []VehicleRecognition
}

// EvidenceKind enumerates matcher evidence signals.
type EvidenceKind string

const (
	EvidenceRaceNumber EvidenceKind = "race_number"
	EvidenceDriverName EvidenceKind = "driver_name"
	EvidenceSponsor    EvidenceKind = "sponsor"
	EvidenceTeam       EvidenceKind = "team"
)

// Evidence is one scored signal linking a recognition to a participant.
type Evidence struct {
	Kind         EvidenceKind
	MatchedValue string
	ScoreContrib float64
}

// MatchCandidate is one participant scored against one recognized vehicle.
type MatchCandidate struct {
	Participant          Participant
	Evidence             []Evidence
	RawScore             float64
	Confidence           float64
	TemporalBonus        float64
	ClusterSize          int
	IsBurstModeCandidate bool
	Reasoning            []string
}

// MatchResult is the outcome of matching one recognized vehicle.
type MatchResult struct {
	Best               *MatchCandidate
	Candidates         []MatchCandidate
	MultipleHighScores bool
	ResolvedByOverride bool
}

// StageName identifies a worker pipeline stage for error/event reporting.
type StageName string

const (
	StagePreparing   StageName = "Preparing"
	StageCompressing StageName = "Compressing"
	StageUploading   StageName = "Uploading"
	StageAnalyzing   StageName = "Analyzing"
	StageMatching    StageName = "Matching"
	StageWriting     StageName = "Writing"
	StageOrganizing  StageName = "Organizing"
)

// CompressionError records that compression could not meet the
// configured size cap even at floor quality. It is a warning signal, not
// a stage failure: the worker keeps going with the oversized result.
type CompressionError struct {
	AchievedBytes int
	LimitBytes    int
	Quality       int
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("could not fit under %d bytes even at floor quality (got %d bytes at q=%d)",
		e.LimitBytes, e.AchievedBytes, e.Quality)
}

// WorkerResult is the terminal record for one file, streamed to the
// orchestrator's event surface.
type WorkerResult struct {
	FileID      string
	OriginalPath string
	Success     bool
	Analysis    []RecognitionResult
	Matches     []MatchResult
	Timings     map[StageName]time.Duration
	Error       string
	FailedStage StageName
	Cancelled   bool
	DuplicateOf string // path of the near-duplicate neighbor, if any

	// IsGhostVehicle is true when the organizer saw a recognized race
	// number with no roster match and this frame isn't a near-duplicate
	// of an already-processed one, i.e. it represents a new sighting
	// rather than another frame of an already-counted ghost.
	IsGhostVehicle bool

	// CompressionError is set when compression couldn't bring the
	// upload JPEG under the configured size cap even at floor quality.
	// This doesn't fail the file: the oversized result is still used,
	// and this field is the only record that it happened.
	CompressionError *CompressionError
}

// BatchStats tracks monotonically non-decreasing counters for one batch.
type BatchStats struct {
	Total             int
	Processed         int
	Successful        int
	Errors            int
	GhostVehicleCount int
	StartTime         time.Time
	EndTime           time.Time
	MemorySamples     []float64 // fraction of system memory in use, 0..1
}

// Duration returns the elapsed batch time so far (or the final duration
// once EndTime is set).
func (s *BatchStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}
