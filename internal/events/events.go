// Package events implements the batch pipeline's typed event surface.
//
// The orchestrator publishes progress and lifecycle events; callers (a UI,
// a CLI progress bar, a test) subscribe with a single callback. This
// mirrors the teacher engine's ProgressCallback, generalized from one
// progress signal to the full topic set the spec names.
package events

// Topic names the event surface's topics (spec.md §6).
type Topic string

const (
	TopicTemporalAnalysisStarted  Topic = "temporal-analysis-started"
	TopicTemporalBatchProgress    Topic = "temporal-batch-progress"
	TopicTemporalAnalysisComplete Topic = "temporal-analysis-complete"
	TopicRecognitionPhaseStarted  Topic = "recognition-phase-started"
	TopicImageProcessed           Topic = "imageProcessed"
	TopicImageUploaded            Topic = "image-uploaded"
	TopicBatchComplete            Topic = "batchComplete"
	TopicBatchCancelled           Topic = "batch-cancelled"
	TopicProcessingError          Topic = "processing-error"
	TopicUnknownNumber            Topic = "UnknownNumber"
	TopicChunkInfo                Topic = "chunkInfo"
)

// Event is one published occurrence; Payload's concrete type depends on
// Topic (see the Topic* payload structs below).
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives published events. Handlers are invoked synchronously on
// the publisher's goroutine, so they must not block; slow consumers should
// buffer internally.
type Handler func(Event)

// Bus is a minimal synchronous publish/subscribe hub. Safe for concurrent
// Publish calls (the pipeline's workers all publish through the same Bus).
type Bus struct {
	handlers []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler invoked for every published event. Not
// safe to call concurrently with Publish; subscribe before the batch
// starts.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Publish fans the event out to every subscribed handler.
func (b *Bus) Publish(topic Topic, payload any) {
	evt := Event{Topic: topic, Payload: payload}
	for _, h := range b.handlers {
		h(evt)
	}
}

// TemporalAnalysisStarted is the payload for TopicTemporalAnalysisStarted.
type TemporalAnalysisStarted struct {
	TotalImages int
}

// TemporalBatchProgress is the payload for TopicTemporalBatchProgress.
type TemporalBatchProgress struct {
	Processed    int
	Total        int
	CurrentBatch int
	TotalBatches int
}

// TemporalAnalysisComplete is the payload for TopicTemporalAnalysisComplete.
type TemporalAnalysisComplete struct {
	ProcessedImages int
	ExcludedImages  int
	TotalClusters   int
}

// RecognitionPhaseStarted is the payload for TopicRecognitionPhaseStarted.
type RecognitionPhaseStarted struct {
	TotalImages int
}

// ImageProcessed is the payload for TopicImageProcessed.
type ImageProcessed struct {
	FileName         string
	OriginalPath     string
	Error            string
	ProcessingTimeMs int64
	PreviewDataURL   string
	Processed        int
	Total            int
	Phase            string
	Step             int
	TotalSteps       int
	Progress         float64
}

// ImageUploaded is the payload for TopicImageUploaded.
type ImageUploaded struct {
	OriginalFileName string
	PublicURL        string
}

// BatchComplete is the payload for TopicBatchComplete.
type BatchComplete struct {
	Successful int
	Errors     int
	Total      int
}

// BatchCancelled is the payload for TopicBatchCancelled.
type BatchCancelled struct {
	Message string
}

// ProcessingError is the payload for TopicProcessingError.
type ProcessingError struct {
	Error   string
	Details string
}

// UnknownNumberEvent is the payload for TopicUnknownNumber.
type UnknownNumberEvent struct {
	FileName string
	Numbers  []string
}

// ChunkInfo is the payload for TopicChunkInfo.
type ChunkInfo struct {
	ChunkIndex  int
	ChunkCount  int
	ChunkSize   int
}
