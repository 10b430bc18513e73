package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/racetagger/pipeline/internal/analysis"
	"github.com/racetagger/pipeline/internal/billing"
	"github.com/racetagger/pipeline/internal/catalog"
	"github.com/racetagger/pipeline/internal/cleanup"
	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/internal/events"
	"github.com/racetagger/pipeline/internal/matcher"
	"github.com/racetagger/pipeline/internal/metadata"
	"github.com/racetagger/pipeline/internal/organizer"
	"github.com/racetagger/pipeline/internal/orchestrator"
	"github.com/racetagger/pipeline/internal/prepare"
	"github.com/racetagger/pipeline/internal/roster"
	"github.com/racetagger/pipeline/internal/upload"
	"github.com/racetagger/pipeline/internal/worker"
	"github.com/racetagger/pipeline/pkg/models"
)

// supportedExts lists every extension findImages will pick up: the raster
// formats prepare.Prepare decodes directly, plus every prepare.IsRaw
// container.
var supportedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
	".dng": true, ".cr2": true, ".cr3": true, ".nef": true,
	".arw": true, ".raw": true, ".orf": true, ".rw2": true,
}

func processCommand() error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	rosterPath := fs.String("roster", "", "Path to a participant roster CSV (optional)")
	categoryPath := fs.String("category", "", "Path to a sport-category YAML config (optional, defaults to motorsport)")
	processorPath := fs.String("processor-config", "", "Path to a processor YAML config (optional, defaults built in)")
	bucket := fs.String("bucket", "", "S3 bucket to upload compressed images to")
	endpoint := fs.String("analysis-endpoint", "", "Inference endpoint URL for protocol v2")
	modelName := fs.String("model", "default", "Model name sent with each analysis request")
	userID := fs.String("user-id", "", "User id attached to analysis requests")
	executionID := fs.String("execution-id", "", "Execution id attached to analysis requests and billing deductions")
	preset := fs.String("participant-preset", "", "Participant preset name attached to analysis requests")
	organize := fs.Bool("organize", false, "Copy/move processed photos into per-entrant destination folders")
	destination := fs.String("destination", "", "Destination root for organized output (defaults next to the source folder)")

	fs.Usage = func() {
		fmt.Println("Usage: racetagger process <folder> [options]")
		fmt.Println("")
		fmt.Println("Run one batch of race photos through the recognition pipeline.")
		fmt.Println("")
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return fmt.Errorf("photo folder is required")
	}
	folder := fs.Arg(0)

	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("photo folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folder)
	}

	category := config.DefaultMotorsportConfig()
	if *categoryPath != "" {
		category, err = config.LoadSportCategoryConfig(*categoryPath)
		if err != nil {
			return err
		}
	}

	processorCfg := config.DefaultProcessorConfig()
	if *processorPath != "" {
		processorCfg, err = config.LoadProcessorConfig(*processorPath)
		if err != nil {
			return err
		}
	}
	if *organize {
		processorCfg.Organizer.Enabled = true
		if *destination != "" {
			processorCfg.Organizer.DestinationPath = *destination
		}
	}

	var entrants []models.Participant
	if *rosterPath != "" {
		entrants, err = roster.Load(*rosterPath)
		if err != nil {
			return err
		}
	}

	files, err := findImages(folder)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Println("No supported image files found.")
		return nil
	}

	m, err := matcher.New(category, 256)
	if err != nil {
		return fmt.Errorf("building matcher: %w", err)
	}
	cleanMgr, err := cleanup.New(processorCfg.TempRoot)
	if err != nil {
		return fmt.Errorf("building cleanup manager: %w", err)
	}
	if err := cleanMgr.StartupCleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: temp directory cleanup: %v\n", err)
	}
	cat, err := catalog.Open()
	if err != nil {
		return fmt.Errorf("opening scratch catalog: %w", err)
	}
	defer cat.Close()

	ctx := context.Background()
	uploadClient, err := upload.NewDefaultClient(ctx, *bucket)
	if err != nil {
		return fmt.Errorf("building upload client: %w", err)
	}

	org := organizer.New(processorCfg.Organizer, folder)
	bus := events.NewBus()
	bus.Subscribe(progressLogger())

	deps := worker.Deps{
		Processor:         processorCfg,
		Category:          category,
		Matcher:           m,
		Writer:            metadata.NewWriter(""),
		Organizer:         org,
		Cleanup:           cleanMgr,
		Catalog:           cat,
		Upload:            uploadClient,
		Analysis:          analysis.NewClient(analysis.Endpoints{V2: *endpoint}),
		Billing:           billing.NoopCollaborator{},
		Events:            bus,
		Roster:            entrants,
		HasRoster:         len(entrants) > 0,
		ModelName:         *modelName,
		UserID:            *userID,
		ExecutionID:       *executionID,
		ParticipantPreset: *preset,
	}

	cancelled := cancellationFlag()

	fmt.Printf("Processing %d photos from %s\n", len(files), folder)
	if len(entrants) > 0 {
		fmt.Printf("  Roster: %d entrants (%s)\n", len(entrants), *rosterPath)
	} else {
		fmt.Println("  Roster: none (recognition-only mode)")
	}
	fmt.Println()

	start := time.Now()
	o := orchestrator.New(deps)
	results := o.ProcessBatch(ctx, files, processorCfg, cancelled)

	successful, failed := 0, 0
	for _, r := range results {
		if r.Success {
			successful++
		} else if !r.Cancelled {
			failed++
		}
	}

	fmt.Printf("\nDone in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Successful: %d\n", successful)
	fmt.Printf("  Failed: %d\n", failed)
	if failed > 0 {
		return fmt.Errorf("%d photos failed to process", failed)
	}
	return nil
}

// findImages walks root recursively, collecting every file whose
// extension this pipeline knows how to prepare.
func findImages(root string) ([]models.ImageFile, error) {
	var files []models.ImageFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !supportedExts[ext] {
			return nil
		}
		files = append(files, models.ImageFile{
			Path:      path,
			Filename:  filepath.Base(path),
			IsRaw:     prepare.IsRaw(ext),
			Extension: ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return files, nil
}

// cancellationFlag wires SIGINT/SIGTERM into the orchestrator's
// IsCancelled polling, mirroring the pack's signal-driven graceful
// shutdown pattern.
func cancellationFlag() func() bool {
	var cancelled atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCancellation requested, finishing in-flight photos...")
		cancelled.Store(true)
	}()
	return cancelled.Load
}

// progressLogger prints a line per processed photo and the terminal
// lifecycle events to stdout.
func progressLogger() events.Handler {
	return func(e events.Event) {
		switch e.Topic {
		case events.TopicRecognitionPhaseStarted:
			p := e.Payload.(events.RecognitionPhaseStarted)
			fmt.Printf("Starting recognition on %d photos...\n", p.TotalImages)
		case events.TopicChunkInfo:
			p := e.Payload.(events.ChunkInfo)
			fmt.Printf("Chunk %d/%d (%d photos)\n", p.ChunkIndex+1, p.ChunkCount, p.ChunkSize)
		case events.TopicImageProcessed:
			p := e.Payload.(events.ImageProcessed)
			status := "ok"
			if p.Error != "" {
				status = "error: " + p.Error
			}
			fmt.Printf("  [%d/%d] %s — %s\n", p.Processed, p.Total, p.FileName, status)
		case events.TopicUnknownNumber:
			p := e.Payload.(events.UnknownNumberEvent)
			fmt.Printf("  unrecognized number(s) %v in %s\n", p.Numbers, p.FileName)
		case events.TopicBatchCancelled:
			p := e.Payload.(events.BatchCancelled)
			fmt.Println(p.Message)
		}
	}
}
