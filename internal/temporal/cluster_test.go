package temporal

import (
	"testing"
	"time"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

func ts(path string, t time.Time) models.ImageTimestamp {
	return models.ImageTimestamp{Path: path, Timestamp: t, HasTimestamp: true, Source: models.TimestampSourceEXIF}
}

func TestClusterTwoBursts(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inputs := []models.ImageTimestamp{
		ts("a.jpg", base),
		ts("b.jpg", base.Add(80*time.Millisecond)),
		ts("c.jpg", base.Add(160*time.Millisecond)),
		ts("d.jpg", base.Add(9*time.Second)),
		ts("e.jpg", base.Add(9100*time.Millisecond)),
		ts("f.jpg", base.Add(9200*time.Millisecond)),
	}

	cat := config.DefaultMotorsportConfig()
	cat.Temporal.Window = 5
	cat.Temporal.BurstMinimum = 3

	result := Cluster(inputs, cat)

	if len(result.Excluded) != 0 {
		t.Fatalf("expected no excluded timestamps, got %d", len(result.Excluded))
	}

	burstCount := 0
	for _, c := range result.Clusters {
		if c.IsBurst {
			burstCount++
		}
	}
	if burstCount != 2 {
		t.Errorf("expected 2 bursts, got %d (clusters=%d)", burstCount, len(result.Clusters))
	}
}

func TestClusterExcludesUnparseableTimestamps(t *testing.T) {
	inputs := []models.ImageTimestamp{
		{Path: "no-date.jpg", HasTimestamp: false},
		ts("a.jpg", time.Now()),
	}
	cat := config.DefaultMotorsportConfig()
	result := Cluster(inputs, cat)

	if len(result.Excluded) != 1 {
		t.Fatalf("expected 1 excluded timestamp, got %d", len(result.Excluded))
	}
	if result.Excluded[0].Path != "no-date.jpg" {
		t.Errorf("expected no-date.jpg excluded, got %s", result.Excluded[0].Path)
	}
}

func TestIndexNeighborsWithinWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inputs := []models.ImageTimestamp{
		ts("a.jpg", base),
		ts("b.jpg", base.Add(2*time.Second)),
		ts("c.jpg", base.Add(4*time.Second)),
		ts("d.jpg", base.Add(30*time.Second)),
	}
	cat := config.DefaultMotorsportConfig()
	cat.Temporal.Window = 5
	cat.Temporal.BurstMinimum = 2

	result := Cluster(inputs, cat)
	idx := NewIndex(result, 5*time.Second)

	neighbors := idx.Neighbors("b.jpg", base.Add(2*time.Second))
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors for b.jpg, got %d", len(neighbors))
	}
	for _, n := range neighbors {
		gap := n.Timestamp.Sub(base.Add(2 * time.Second))
		if gap < 0 {
			gap = -gap
		}
		if gap > 5*time.Second {
			t.Errorf("neighbor %s outside window: gap=%v", n.Path, gap)
		}
	}

	farNeighbors := idx.Neighbors("d.jpg", base.Add(30*time.Second))
	if len(farNeighbors) != 0 {
		t.Errorf("expected no neighbors for isolated d.jpg, got %d", len(farNeighbors))
	}
}
