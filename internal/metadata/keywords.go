package metadata

import (
	"fmt"
	"strings"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

const separatorEntry = "•••"

// stopWords are discarded when splitting a participant's free-form
// metatag into individual keywords.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
}

// categoryLabel picks the driver-label prefix ("Driver(s)", "Athlete(s)",
// "Participant(s)") from the sport category config.
func categoryLabel(cat config.SportCategoryConfig) string {
	if cat.DriverLabel != "" {
		return cat.DriverLabel
	}
	return "Participant(s)"
}

// BuildKeywords composes the ordered keyword list for one image given its
// per-vehicle match results. hasRoster distinguishes "no roster supplied"
// from "roster supplied but no match", which changes the fallback rule.
func BuildKeywords(matches []models.MatchResult, recognitions []models.VehicleRecognition, cat config.SportCategoryConfig, hasRoster bool) []string {
	var anyMatched bool
	for _, m := range matches {
		if m.Best != nil {
			anyMatched = true
			break
		}
	}

	if anyMatched {
		var out []string
		for _, m := range matches {
			if m.Best == nil {
				continue
			}
			out = append(out, participantKeywords(m.Best.Participant)...)
		}
		return out
	}

	if hasRoster {
		// Roster supplied but nothing matched: the spec forbids emitting
		// recognition-only keywords in this case.
		return nil
	}

	var out []string
	for i, r := range recognitions {
		if i > 0 {
			out = append(out, separatorEntry)
		}
		out = append(out, recognitionKeywords(r, cat)...)
	}
	return out
}

func participantKeywords(p models.Participant) []string {
	var out []string
	if p.Numero != "" {
		out = append(out, p.Numero)
	}
	for _, driver := range p.DriverNames {
		out = append(out, splitNames(driver)...)
	}
	if p.Team != "" {
		out = append(out, p.Team)
	}
	out = append(out, splitMetatag(p.Metatag)...)
	return out
}

func recognitionKeywords(r models.VehicleRecognition, cat config.SportCategoryConfig) []string {
	var out []string
	if r.HasNumber {
		out = append(out, fmt.Sprintf("Number: %s", r.RaceNumber))
	}
	if len(r.Drivers) > 0 {
		out = append(out, fmt.Sprintf("%s: %s", categoryLabel(cat), strings.Join(r.Drivers, ", ")))
	}
	if r.Category != "" {
		out = append(out, fmt.Sprintf("Category: %s", r.Category))
	}
	if cat.Name == "motorsport" && r.Team != "" {
		out = append(out, r.Team)
	}

	sponsors := tokenizeOtherText(r.OtherText)
	if len(sponsors) > 3 {
		sponsors = sponsors[:3]
	}
	out = append(out, sponsors...)
	return out
}

// splitNames splits a single driver-names field on the separators the
// roster itself uses between co-drivers.
func splitNames(s string) []string {
	return splitAndClean(s, ",&/-", 1)
}

// splitMetatag splits a participant's free-form metatag into individual
// keywords, discarding short tokens and stop words.
func splitMetatag(s string) []string {
	return splitAndClean(s, ",&/-", 3)
}

func splitAndClean(s string, extraSeparators string, minLen int) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		if r == ' ' || r == '\t' || r == '\n' {
			return true
		}
		return strings.ContainsRune(extraSeparators, r)
	})

	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || len(f) < minLen {
			continue
		}
		if stopWords[strings.ToLower(f)] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func tokenizeOtherText(s string) []string {
	return splitAndClean(s, ",&/-", 3)
}

// BuildDescription produces the extended description string: matched
// participants' metatag fields joined by " | "; empty metatags
// contribute nothing.
func BuildDescription(matches []models.MatchResult) string {
	var parts []string
	for _, m := range matches {
		if m.Best == nil {
			continue
		}
		metatag := strings.TrimSpace(m.Best.Participant.Metatag)
		if metatag == "" {
			continue
		}
		parts = append(parts, metatag)
	}
	return strings.Join(parts, " | ")
}

// MergeKeywords applies append/overwrite semantics: in append mode, new
// keywords are added to existing ones with case-insensitive dedup
// (existing keywords keep their original casing and order); in overwrite
// mode, new entirely replaces existing.
func MergeKeywords(existing, incoming []string, mode config.MetadataMode) []string {
	if mode == config.MetadataOverwrite {
		return incoming
	}

	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, e := range existing {
		key := strings.ToLower(strings.TrimSpace(e))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	for _, n := range incoming {
		key := strings.ToLower(strings.TrimSpace(n))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}
