// Package temporal implements burst-sequence detection for a batch of
// photos by EXIF/filesystem timestamp.
//
// It is a pure, in-memory generalization of the teacher's SQL-backed burst
// detector (internal/indexer/burst.go in the teacher repo): sort once,
// scan once, and report neighbors by binary search. Unlike the teacher,
// which gated bursts on camera make/model and focal-length proximity, this
// package only knows about timestamps and a sport category's configured
// gap/minimum — camera/lens agreement is not part of the spec.
package temporal

import (
	"sort"
	"time"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

// Result is the output of clustering one batch of timestamps.
type Result struct {
	Clusters []models.TemporalCluster
	Excluded []models.ImageTimestamp // unparseable/missing timestamps
}

// Cluster sorts timestamps ascending and scans once, starting a new
// cluster whenever the gap to the previous timestamp exceeds the
// category's window. A burst is any cluster whose size meets the
// category's burst minimum.
func Cluster(timestamps []models.ImageTimestamp, cat config.SportCategoryConfig) Result {
	window := time.Duration(cat.Temporal.Window) * time.Second
	if window <= 0 {
		window = 5 * time.Second
	}
	burstMin := cat.Temporal.BurstMinimum
	if burstMin <= 0 {
		burstMin = 3
	}

	var result Result
	var usable []models.ImageTimestamp
	for _, ts := range timestamps {
		if !ts.HasTimestamp {
			result.Excluded = append(result.Excluded, ts)
			continue
		}
		usable = append(usable, ts)
	}

	sort.Slice(usable, func(i, j int) bool {
		return usable[i].Timestamp.Before(usable[j].Timestamp)
	})

	var current []models.ImageTimestamp
	flush := func() {
		if len(current) == 0 {
			return
		}
		maxGap := time.Duration(0)
		for i := 1; i < len(current); i++ {
			gap := current[i].Timestamp.Sub(current[i-1].Timestamp)
			if gap > maxGap {
				maxGap = gap
			}
		}
		result.Clusters = append(result.Clusters, models.TemporalCluster{
			Images:        append([]models.ImageTimestamp(nil), current...),
			MaxGap:        maxGap,
			SportCategory: cat.Name,
			IsBurst:       len(current) >= burstMin,
		})
		current = nil
	}

	for i, ts := range usable {
		if i == 0 {
			current = append(current, ts)
			continue
		}
		gap := ts.Timestamp.Sub(usable[i-1].Timestamp)
		if gap > window {
			flush()
		}
		current = append(current, ts)
	}
	flush()

	return result
}

// Index supports fast neighbor lookups for an individual image once
// Cluster has run, by binary-searching the sorted, clustered timestamps.
type Index struct {
	sorted []models.ImageTimestamp
	window time.Duration
}

// NewIndex builds a neighbor-lookup index from a Result's clusters.
func NewIndex(result Result, window time.Duration) *Index {
	var all []models.ImageTimestamp
	for _, c := range result.Clusters {
		all = append(all, c.Images...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return &Index{sorted: all, window: window}
}

// Neighbors returns every indexed timestamp within Index.window of t,
// excluding path itself. A path that is not indexed still gets the
// indexed timestamps around t; nil means none fall inside the window.
func (idx *Index) Neighbors(path string, t time.Time) []models.ImageTimestamp {
	pos := sort.Search(len(idx.sorted), func(i int) bool {
		return !idx.sorted[i].Timestamp.Before(t)
	})

	var neighbors []models.ImageTimestamp

	for i := pos - 1; i >= 0; i-- {
		if t.Sub(idx.sorted[i].Timestamp) > idx.window {
			break
		}
		if idx.sorted[i].Path != path {
			neighbors = append(neighbors, idx.sorted[i])
		}
	}
	for i := pos; i < len(idx.sorted); i++ {
		if idx.sorted[i].Timestamp.Sub(t) > idx.window {
			break
		}
		if idx.sorted[i].Path != path {
			neighbors = append(neighbors, idx.sorted[i])
		}
	}

	return neighbors
}
