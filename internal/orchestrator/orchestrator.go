// Package orchestrator drives a batch of discovered photos through
// per-image workers under bounded, memory-gated concurrency, reordering
// the queue by temporal locality before recognition begins and emitting
// the pipeline's event surface throughout.
//
// The worker pool generalizes the teacher's own fixed-size channel pool
// (internal/indexer/indexer.go's IndexDirectory/worker pair) into a
// weighted semaphore sized by an admission-control heuristic instead of
// a constructor argument, following the bounded-concurrency shape the
// pack's filesync pipeline builds around golang.org/x/sync/semaphore.
package orchestrator

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/semaphore"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/internal/events"
	"github.com/racetagger/pipeline/internal/prepare"
	"github.com/racetagger/pipeline/internal/temporal"
	"github.com/racetagger/pipeline/internal/worker"
	"github.com/racetagger/pipeline/pkg/models"
)

// memoryHighWaterPercent and memoryLowWaterPercent are the spec's dispatch-gating
// thresholds: above the high mark a manual GC is attempted and memory
// resampled; if still above the low mark, dispatch of the next worker
// is deferred until another worker completes.
const (
	memoryHighWaterPercent = 75.0
	memoryLowWaterPercent  = 70.0
	memoryPollInterval     = 200 * time.Millisecond
)

// Orchestrator processes whole batches using one shared set of
// collaborators (the same Deps every worker in the batch is built with,
// minus the per-batch TemporalIndex this package computes itself).
type Orchestrator struct {
	deps worker.Deps
}

// New builds an Orchestrator around deps. deps.TemporalIndex is ignored
// and overwritten per call to ProcessBatch.
func New(deps worker.Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// IsCancelled is polled before dispatching every file and during
// memory-gated backoff.
type IsCancelled func() bool

// ProcessBatch filters, clusters, chunks, and processes files, returning
// one WorkerResult per file that was actually started. A file skipped by
// the `._`-prefix filter, or never reached because cancellation was
// observed first, has no entry in the returned slice.
func (o *Orchestrator) ProcessBatch(ctx context.Context, files []models.ImageFile, cfg config.ProcessorConfig, isCancelled IsCancelled) []models.WorkerResult {
	files = filterHiddenFiles(files)
	files = assignMissingIDs(files)

	if o.deps.Catalog != nil {
		o.deps.Catalog.UpdateStats(func(s *models.BatchStats) {
			s.Total = len(files)
			s.StartTime = time.Now()
		})
	}

	if len(files) == 0 {
		o.publish(events.TopicBatchComplete, events.BatchComplete{Total: 0})
		return nil
	}

	ordered, index := o.clusterAndReorder(files, cfg)

	o.publish(events.TopicRecognitionPhaseStarted, events.RecognitionPhaseStarted{TotalImages: len(ordered)})

	chunks := chunkFiles(ordered, cfg)

	var results []models.WorkerResult
	for i, chunk := range chunks {
		if isCancelled() {
			break
		}
		if len(chunks) > 1 {
			o.publish(events.TopicChunkInfo, events.ChunkInfo{ChunkIndex: i, ChunkCount: len(chunks), ChunkSize: len(chunk)})
		}

		results = append(results, o.processChunk(ctx, chunk, cfg, index, isCancelled)...)

		if isCancelled() {
			break
		}
		if i < len(chunks)-1 {
			runtime.GC()
			time.Sleep(time.Duration(chunkPauseSeconds(cfg)) * time.Second)
		}
	}

	if o.deps.Catalog != nil {
		o.deps.Catalog.UpdateStats(func(s *models.BatchStats) {
			s.EndTime = time.Now()
		})
	}

	if isCancelled() {
		o.publish(events.TopicBatchCancelled, events.BatchCancelled{Message: "Processing cancelled by user"})
		return results
	}

	successful, errors := tally(results)
	o.publish(events.TopicBatchComplete, events.BatchComplete{Successful: successful, Errors: errors, Total: len(files)})
	return results
}

// processChunk dispatches one chunk's files under a weighted semaphore,
// gating each dispatch on available memory.
func (o *Orchestrator) processChunk(ctx context.Context, chunk []models.ImageFile, cfg config.ProcessorConfig, index *temporal.Index, isCancelled IsCancelled) []models.WorkerResult {
	maxWorkers := computeMaxWorkers(cfg)
	sem := semaphore.NewWeighted(int64(maxWorkers))

	results := make([]models.WorkerResult, 0, len(chunk))
	var mu sync.Mutex
	var wg sync.WaitGroup

	w := worker.New(deps(o.deps, index))

	for _, f := range chunk {
		if isCancelled() {
			break
		}
		if !waitForMemoryHeadroom(ctx, isCancelled) {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(f models.ImageFile) {
			defer wg.Done()
			defer sem.Release(1)

			start := time.Now()
			result := w.Process(ctx, f, func() bool { return isCancelled() })
			elapsed := time.Since(start)

			mu.Lock()
			results = append(results, result)
			processed := len(results)
			mu.Unlock()

			o.recordResult(result)
			o.publish(events.TopicImageProcessed, events.ImageProcessed{
				FileName:         f.Filename,
				OriginalPath:     f.Path,
				Error:            result.Error,
				ProcessingTimeMs: elapsed.Milliseconds(),
				Processed:        processed,
				Total:            len(chunk),
				Phase:            "recognition",
			})
		}(f)
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) recordResult(r models.WorkerResult) {
	if o.deps.Catalog == nil {
		return
	}
	o.deps.Catalog.UpdateStats(func(s *models.BatchStats) {
		s.Processed++
		if r.Success {
			s.Successful++
		} else if !r.Cancelled {
			s.Errors++
		}
		if r.IsGhostVehicle {
			s.GhostVehicleCount++
		}
	})
}

func (o *Orchestrator) publish(topic events.Topic, payload any) {
	if o.deps.Events != nil {
		o.deps.Events.Publish(topic, payload)
	}
}

// clusterAndReorder runs a lightweight timestamp-only pass (no pixel
// decode) over every file, clusters by temporal proximity, and returns
// the files reordered by ascending timestamp (excluded/unparseable
// files appended at the end, original order preserved among them) plus
// the neighbor-lookup index the matcher's temporal bonus consults.
func (o *Orchestrator) clusterAndReorder(files []models.ImageFile, cfg config.ProcessorConfig) ([]models.ImageFile, *temporal.Index) {
	o.publish(events.TopicTemporalAnalysisStarted, events.TemporalAnalysisStarted{TotalImages: len(files)})

	byPath := make(map[string]models.ImageFile, len(files))
	timestamps := make([]models.ImageTimestamp, 0, len(files))

	batchSize := chunkSize(cfg)
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		for _, f := range files[start:end] {
			byPath[f.Path] = f
			timestamps = append(timestamps, prepare.ExtractTimestamp(f.Path))
		}
		o.publish(events.TopicTemporalBatchProgress, events.TemporalBatchProgress{
			Processed:    end,
			Total:        len(files),
			CurrentBatch: start/batchSize + 1,
			TotalBatches: (len(files) + batchSize - 1) / batchSize,
		})
	}

	clusterResult := temporal.Cluster(timestamps, o.deps.Category)
	neighborWindow := time.Duration(o.deps.Category.Temporal.Window) * time.Second
	if neighborWindow <= 0 {
		neighborWindow = 5 * time.Second
	}
	index := temporal.NewIndex(clusterResult, neighborWindow)

	var ordered []models.ImageFile
	seen := make(map[string]bool, len(files))
	for _, c := range clusterResult.Clusters {
		for _, ts := range c.Images {
			if f, ok := byPath[ts.Path]; ok {
				ordered = append(ordered, f)
				seen[ts.Path] = true
			}
		}
	}
	for _, f := range files {
		if !seen[f.Path] {
			ordered = append(ordered, f)
		}
	}

	o.publish(events.TopicTemporalAnalysisComplete, events.TemporalAnalysisComplete{
		ProcessedImages: len(files) - len(clusterResult.Excluded),
		ExcludedImages:  len(clusterResult.Excluded),
		TotalClusters:   len(clusterResult.Clusters),
	})

	return ordered, index
}

// deps returns a copy of base with index installed as its per-batch
// temporal context; every worker in a chunk shares this value.
func deps(base worker.Deps, index *temporal.Index) worker.Deps {
	base.TemporalIndex = index
	return base
}

// filterHiddenFiles drops macOS metadata sidecars (AppleDouble files),
// recognized by their `._` filename prefix.
func filterHiddenFiles(files []models.ImageFile) []models.ImageFile {
	out := make([]models.ImageFile, 0, len(files))
	for _, f := range files {
		if strings.HasPrefix(filepath.Base(f.Path), "._") {
			continue
		}
		out = append(out, f)
	}
	return out
}

// assignMissingIDs stamps a stable batch-unique id onto any file whose
// discoverer left ID empty.
func assignMissingIDs(files []models.ImageFile) []models.ImageFile {
	for i := range files {
		if files[i].ID == "" {
			files[i].ID = uuid.New().String()
		}
	}
	return files
}

// chunkSize returns cfg's configured chunk size, or the spec default.
func chunkSize(cfg config.ProcessorConfig) int {
	if cfg.ChunkSize > 0 {
		return cfg.ChunkSize
	}
	return 500
}

func chunkPauseSeconds(cfg config.ProcessorConfig) int {
	if cfg.ChunkPauseSeconds > 0 {
		return cfg.ChunkPauseSeconds
	}
	return 3
}

// chunkFiles splits files into chunks of cfg's configured size only once
// the batch exceeds 1,500 files; smaller batches run as a single chunk
// with no inter-chunk pause.
func chunkFiles(files []models.ImageFile, cfg config.ProcessorConfig) [][]models.ImageFile {
	const chunkingThreshold = 1500
	if len(files) <= chunkingThreshold {
		return [][]models.ImageFile{files}
	}

	size := chunkSize(cfg)
	var chunks [][]models.ImageFile
	for start := 0; start < len(files); start += size {
		end := start + size
		if end > len(files) {
			end = len(files)
		}
		chunks = append(chunks, files[start:end])
	}
	return chunks
}

// computeMaxWorkers resolves the configured (or auto-derived) worker
// ceiling: clamp(3, 16, floor(cpuCount * 0.85)), then capped further by
// a memory heuristic, floor(totalGB * 0.4 * 6.67).
func computeMaxWorkers(cfg config.ProcessorConfig) int {
	if cfg.MaxConcurrentWorkers > 0 {
		return cfg.MaxConcurrentWorkers
	}

	cpuBound := clampInt(3, 16, int(float64(runtime.NumCPU())*0.85))

	memBound := cpuBound
	if vm, err := mem.VirtualMemory(); err == nil {
		totalGB := float64(vm.Total) / (1024 * 1024 * 1024)
		if heuristic := int(totalGB * 0.4 * 6.67); heuristic > 0 {
			memBound = heuristic
		}
	}

	return clampInt(1, cpuBound, memBound)
}

func clampInt(lo, hi, v int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// waitForMemoryHeadroom blocks (polling every memoryPollInterval) while
// resident memory stays above memoryLowWaterPercent after an initial GC
// attempt triggered by crossing memoryHighWaterPercent. Returns true once
// there's headroom to dispatch, false if cancellation or ctx.Done() cuts
// the wait short. A failed memory sample is treated as "proceed" rather
// than blocking forever on an unavailable facility.
func waitForMemoryHeadroom(ctx context.Context, isCancelled IsCancelled) bool {
	for {
		if isCancelled() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		default:
		}

		vm, err := mem.VirtualMemory()
		if err != nil {
			return true
		}
		if vm.UsedPercent <= memoryHighWaterPercent {
			return true
		}

		runtime.GC()
		vm, err = mem.VirtualMemory()
		if err != nil || vm.UsedPercent <= memoryLowWaterPercent {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(memoryPollInterval):
		}
	}
}

func tally(results []models.WorkerResult) (successful, errorCount int) {
	for _, r := range results {
		switch {
		case r.Success:
			successful++
		case !r.Cancelled:
			errorCount++
		}
	}
	return
}
