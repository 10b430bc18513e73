// Package matcher scores recognized vehicles against a participant
// roster using weighted evidence (race number, driver name, team,
// sponsor), a temporal bonus from prior same-batch outcomes, and a
// tie-break selection procedure, then caches results per batch.
package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hbollon/go-edlib"

	"github.com/racetagger/pipeline/internal/config"
	"github.com/racetagger/pipeline/pkg/models"
)

// NeighborOutcome is one temporal neighbor's prior match outcome within
// this batch, as recorded by internal/catalog.
type NeighborOutcome struct {
	Numero     string
	Confidence float64
}

// Matcher scores vehicles against a roster for one sport category,
// short-circuiting repeat work through a per-batch LRU cache.
type Matcher struct {
	cat   config.SportCategoryConfig
	cache *lru.Cache[string, models.MatchResult]
}

// New builds a Matcher with an LRU cache of the given size (0 disables
// caching).
func New(cat config.SportCategoryConfig, cacheSize int) (*Matcher, error) {
	m := &Matcher{cat: cat}
	if cacheSize > 0 {
		cache, err := lru.New[string, models.MatchResult](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("matcher: building cache: %w", err)
		}
		m.cache = cache
	}
	return m, nil
}

// FilterRecognitions applies the pre-filter stage ahead of scoring:
// confidence floor, descending sort, relative-gap pruning for team
// sports, individual-competition top-1, and a final maxResults cap.
func FilterRecognitions(vehicles []models.VehicleRecognition, cat config.SportCategoryConfig) []models.VehicleRecognition {
	var surviving []models.VehicleRecognition
	for _, v := range vehicles {
		if v.Confidence >= cat.Recognition.MinConfidence {
			surviving = append(surviving, v)
		}
	}
	sort.SliceStable(surviving, func(i, j int) bool {
		return surviving[i].Confidence > surviving[j].Confidence
	})

	if len(surviving) == 0 {
		return surviving
	}

	if !cat.IndividualCompetition && len(surviving) > 1 {
		best := surviving[0].Confidence
		decay := cat.Recognition.ConfidenceDecayFactor
		if decay <= 0 {
			decay = 1
		}
		kept := surviving[:1]
		for i := 1; i < len(surviving); i++ {
			conf := surviving[i].Confidence
			gap := best - conf
			decayed := conf * pow(decay, i)
			if gap > cat.Recognition.RelativeConfidenceGap || decayed < cat.Recognition.MinConfidence {
				break
			}
			kept = append(kept, surviving[i])
		}
		surviving = kept
	}

	if cat.IndividualCompetition && len(surviving) > 1 {
		surviving = surviving[:1]
	}

	if cat.Recognition.MaxResults > 0 && len(surviving) > cat.Recognition.MaxResults {
		surviving = surviving[:cat.Recognition.MaxResults]
	}

	return surviving
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Match scores one recognized vehicle against the full roster and
// applies the selection rules to produce a MatchResult. The cache key
// combines the recognition's content, the roster, the category and
// vehicleIndex; it does not include the image or its neighbor outcomes,
// so identical recognitions from different images share one cached
// result.
func (m *Matcher) Match(vehicleIndex int, recognition models.VehicleRecognition, roster []models.Participant, neighbors []NeighborOutcome) models.MatchResult {
	key := cacheKey(recognition, roster, m.cat.Name, vehicleIndex)
	if m.cache != nil {
		if cached, ok := m.cache.Get(key); ok {
			return cached
		}
	}

	result := m.score(recognition, roster, neighbors)

	if m.cache != nil {
		m.cache.Add(key, result)
	}
	return result
}

func (m *Matcher) score(recognition models.VehicleRecognition, roster []models.Participant, neighbors []NeighborOutcome) models.MatchResult {
	normalizer := m.cat.Weights.RaceNumber + m.cat.Weights.DriverName + m.cat.Weights.Team + m.cat.Weights.Sponsor
	if normalizer <= 0 {
		normalizer = 1
	}

	var candidates []models.MatchCandidate
	nameSimilarities := make(map[int]float64) // index into candidates -> best driver-name similarity seen

	for _, p := range roster {
		var evidence []models.Evidence
		var reasoning []string
		bestSimilarity := 0.0

		if recognition.HasNumber && recognition.RaceNumber != "" && strings.TrimSpace(recognition.RaceNumber) == strings.TrimSpace(p.Numero) {
			evidence = append(evidence, models.Evidence{Kind: models.EvidenceRaceNumber, MatchedValue: p.Numero, ScoreContrib: m.cat.Weights.RaceNumber})
			reasoning = append(reasoning, fmt.Sprintf("race number %s matches", p.Numero))
		}

		if name, similarity, ok := matchesAnyDriver(p.DriverNames, recognition.Drivers); ok {
			evidence = append(evidence, models.Evidence{Kind: models.EvidenceDriverName, MatchedValue: name, ScoreContrib: m.cat.Weights.DriverName})
			reasoning = append(reasoning, fmt.Sprintf("driver %q recognized", name))
			bestSimilarity = similarity
		}

		if p.Team != "" && containsFold(recognition.Team, p.Team) {
			evidence = append(evidence, models.Evidence{Kind: models.EvidenceTeam, MatchedValue: p.Team, ScoreContrib: m.cat.Weights.Team})
			reasoning = append(reasoning, fmt.Sprintf("team %q recognized", p.Team))
		}

		if sponsor, ok := matchesAnySponsor(p.Sponsors, recognition.OtherText); ok {
			evidence = append(evidence, models.Evidence{Kind: models.EvidenceSponsor, MatchedValue: sponsor, ScoreContrib: m.cat.Weights.Sponsor})
			reasoning = append(reasoning, fmt.Sprintf("sponsor %q recognized", sponsor))
		}

		if len(evidence) == 0 {
			continue
		}

		var rawScore float64
		for _, e := range evidence {
			rawScore += e.ScoreContrib
		}

		bonus, clusterSize := temporalBonus(p.Numero, neighbors, m.cat.Temporal.MaxBonus)

		nameSimilarities[len(candidates)] = bestSimilarity
		candidates = append(candidates, models.MatchCandidate{
			Participant:          p,
			Evidence:             evidence,
			RawScore:             rawScore,
			TemporalBonus:        bonus,
			ClusterSize:          clusterSize,
			IsBurstModeCandidate: clusterSize >= m.cat.Temporal.BurstMinimum,
			Reasoning:            reasoning,
		})
	}

	for i := range candidates {
		total := candidates[i].RawScore + candidates[i].TemporalBonus
		candidates[i].Confidence = clampFloat(total/normalizer, 0, 1)
	}

	type scored struct {
		candidate  models.MatchCandidate
		similarity float64
	}
	pairs := make([]scored, len(candidates))
	for i, c := range candidates {
		pairs[i] = scored{candidate: c, similarity: nameSimilarities[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return (pairs[i].candidate.RawScore + pairs[i].candidate.TemporalBonus) > (pairs[j].candidate.RawScore + pairs[j].candidate.TemporalBonus)
	})
	sorted := make([]models.MatchCandidate, len(pairs))
	similarities := make([]float64, len(pairs))
	for i, p := range pairs {
		sorted[i] = p.candidate
		similarities[i] = p.similarity
	}

	return selectWinner(sorted, similarities, m.cat.Thresholds)
}

func selectWinner(candidates []models.MatchCandidate, similarities []float64, t config.MatchThresholds) models.MatchResult {
	type idx struct {
		c models.MatchCandidate
		s float64
	}
	var surviving []idx
	for i, c := range candidates {
		if c.RawScore+c.TemporalBonus >= t.MinimumScore {
			surviving = append(surviving, idx{c: c, s: similarities[i]})
		}
	}

	if len(surviving) == 0 {
		return models.MatchResult{Candidates: candidates}
	}
	if len(surviving) == 1 {
		best := surviving[0].c
		return models.MatchResult{Best: &best, Candidates: candidates}
	}

	first := surviving[0].c.RawScore + surviving[0].c.TemporalBonus
	second := surviving[1].c.RawScore + surviving[1].c.TemporalBonus
	gap := first - second

	if gap >= t.ClearWinner {
		best := surviving[0].c
		return models.MatchResult{Best: &best, Candidates: candidates}
	}

	if nonNumberScore(surviving[0].c) >= t.StrongNonNumberEvidence && surviving[0].s >= t.NameSimilarity {
		best := surviving[0].c
		return models.MatchResult{Best: &best, Candidates: candidates, MultipleHighScores: true, ResolvedByOverride: true}
	}

	best := surviving[0].c
	return models.MatchResult{Best: &best, Candidates: candidates, MultipleHighScores: true}
}

// nonNumberScore sums a candidate's evidence contributions excluding race
// number, i.e. the portion the "strong non-number evidence" override
// threshold is actually meant to gate on.
func nonNumberScore(c models.MatchCandidate) float64 {
	var total float64
	for _, e := range c.Evidence {
		if e.Kind != models.EvidenceRaceNumber {
			total += e.ScoreContrib
		}
	}
	return total
}

// temporalBonus sums confirming neighbor outcomes (confidence >= 0.6)
// matched to the same race number, capped at maxBonus.
func temporalBonus(numero string, neighbors []NeighborOutcome, maxBonus float64) (float64, int) {
	count := 0
	for _, n := range neighbors {
		if n.Numero == numero && n.Confidence >= 0.6 {
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	bonus := float64(count) * (maxBonus / 3)
	if bonus > maxBonus {
		bonus = maxBonus
	}
	return bonus, count
}

func matchesAnyDriver(participantDrivers, recognizedDrivers []string) (string, float64, bool) {
	for _, pd := range participantDrivers {
		normalized := normalizeWhitespace(pd)
		if normalized == "" {
			continue
		}
		for _, rd := range recognizedDrivers {
			if containsFold(rd, normalized) {
				return pd, NameSimilarity(normalizeWhitespace(rd), normalized), true
			}
		}
	}
	return "", 0, false
}

// sponsorAbbreviations is a seed table of common sponsor abbreviations
// seen on race liveries; not exhaustive, extended as new sponsors recur.
var sponsorAbbreviations = map[string]string{
	"rb":  "red bull",
	"mb":  "mercedes benz",
	"vw":  "volkswagen",
	"gm":  "general motors",
}

func matchesAnySponsor(sponsors []string, otherText string) (string, bool) {
	if otherText == "" || len(sponsors) == 0 {
		return "", false
	}
	tokens := tokenize(otherText)
	// Abbreviations are shorter than tokenize's minimum length, so they
	// are looked up against the unfiltered fields.
	rawFields := strings.FieldsFunc(strings.ToLower(otherText), func(r rune) bool {
		return r == ',' || r == '&' || r == '/' || r == '-' || r == ' ' || r == '\t' || r == '\n'
	})

	for _, sponsor := range sponsors {
		sponsorLower := strings.ToLower(sponsor)
		for _, field := range rawFields {
			if canonical, ok := sponsorAbbreviations[field]; ok && canonical == sponsorLower {
				return sponsor, true
			}
		}
		for _, token := range tokens {
			tokenLower := strings.ToLower(token)

			if strings.Contains(sponsorLower, tokenLower) || strings.Contains(tokenLower, sponsorLower) {
				return sponsor, true
			}
			if len(tokenLower) >= 4 {
				if edlib.LevenshteinDistance(tokenLower, sponsorLower) <= 2 {
					return sponsor, true
				}
			}
		}
	}
	return "", false
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '&' || r == '/' || r == '-' || r == ' ' || r == '\t' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func containsFold(haystack, needle string) bool {
	haystack = normalizeWhitespace(haystack)
	needle = normalizeWhitespace(needle)
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NameSimilarity reports the Jaro-Winkler similarity between two driver
// names, used by the selection rule that promotes a non-clear winner
// when it's backed by strong name evidence.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

// cacheKey mirrors the spec's hash(recognition) XOR hash(roster) XOR
// category XOR vehicleIndex cache key: each component hashes to a
// fixed-width digest and the digests combine byte-for-byte.
func cacheKey(recognition models.VehicleRecognition, roster []models.Participant, category string, vehicleIndex int) string {
	recHash := sha256.Sum256([]byte(fmt.Sprintf("%s|%v|%s|%s", recognition.RaceNumber, recognition.Drivers, recognition.Team, recognition.OtherText)))

	var rosterParts []string
	for _, p := range roster {
		rosterParts = append(rosterParts, p.Numero+":"+strings.Join(p.DriverNames, ","))
	}
	rosterHash := sha256.Sum256([]byte(strings.Join(rosterParts, "|")))

	catHash := sha256.Sum256([]byte(category))
	idxHash := sha256.Sum256([]byte(strconv.Itoa(vehicleIndex)))

	combined := make([]byte, len(recHash))
	for i := range combined {
		combined[i] = recHash[i] ^ rosterHash[i] ^ catHash[i] ^ idxHash[i]
	}
	return hex.EncodeToString(combined)
}

// FallbackMatch is invoked when scoring panics or otherwise fails
// internally: a pure race-number equality lookup with no temporal
// bonus, no caching, and a single race_number evidence entry that
// carries no score.
func FallbackMatch(recognition models.VehicleRecognition, roster []models.Participant) models.MatchResult {
	if !recognition.HasNumber {
		return models.MatchResult{}
	}
	for _, p := range roster {
		if strings.TrimSpace(p.Numero) == strings.TrimSpace(recognition.RaceNumber) {
			candidate := models.MatchCandidate{
				Participant: p,
				Evidence:    []models.Evidence{{Kind: models.EvidenceRaceNumber, MatchedValue: p.Numero}},
				Reasoning:   []string{"fallback race-number lookup"},
			}
			return models.MatchResult{Best: &candidate, Candidates: []models.MatchCandidate{candidate}}
		}
	}
	return models.MatchResult{}
}
