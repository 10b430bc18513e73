// Package config defines the processor and sport-category configuration
// for the batch pipeline, with programmatic defaults and YAML overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MetadataMode selects how keyword/description writes combine with
// existing values.
type MetadataMode string

const (
	MetadataAppend    MetadataMode = "append"
	MetadataOverwrite MetadataMode = "overwrite"
)

// OrganizerPattern selects how destination folder names are derived.
type OrganizerPattern string

const (
	PatternNumber     OrganizerPattern = "number"
	PatternNumberName OrganizerPattern = "number_name"
	PatternCustom     OrganizerPattern = "custom"
)

// ConflictStrategy selects behavior on a destination name collision.
type ConflictStrategy string

const (
	ConflictRename    ConflictStrategy = "rename"
	ConflictSkip      ConflictStrategy = "skip"
	ConflictOverwrite ConflictStrategy = "overwrite"
)

// OrganizerConfig configures the folder organizer stage.
type OrganizerConfig struct {
	Enabled            bool             `yaml:"enabled"`
	Mode               string           `yaml:"mode"` // copy | move
	Pattern            OrganizerPattern `yaml:"pattern"`
	CustomPattern      string           `yaml:"customPattern"`
	CreateUnknownFolder bool            `yaml:"createUnknownFolder"`
	UnknownFolderName  string           `yaml:"unknownFolderName"`
	DestinationPath    string           `yaml:"destinationPath"`
	IncludeXMPFiles    bool             `yaml:"includeXmpFiles"`
	ConflictStrategy   ConflictStrategy `yaml:"conflictStrategy"`
}

// DefaultOrganizerConfig returns the spec's documented defaults.
func DefaultOrganizerConfig() OrganizerConfig {
	return OrganizerConfig{
		Enabled:             false,
		Mode:                "copy",
		Pattern:             PatternNumber,
		CreateUnknownFolder: true,
		UnknownFolderName:   "Unknown_Numbers",
		IncludeXMPFiles:     true,
		ConflictStrategy:    ConflictRename,
	}
}

// ProcessorConfig configures one batch run end to end.
type ProcessorConfig struct {
	MaxImageSizeKB       int             `yaml:"maxImageSizeKB"`
	MaxDimension         int             `yaml:"maxDimension"`
	MaxConcurrentWorkers int             `yaml:"maxConcurrentWorkers"` // 0 = auto
	ChunkSize            int             `yaml:"chunkSize"`
	ChunkPauseSeconds    int             `yaml:"chunkPauseSeconds"`
	TempRoot             string          `yaml:"tempRoot"`
	KeywordsMode         MetadataMode    `yaml:"keywordsMode"`
	DescriptionMode      MetadataMode    `yaml:"descriptionMode"`
	Organizer            OrganizerConfig `yaml:"organizer"`
}

// DefaultProcessorConfig returns the spec's documented defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		MaxImageSizeKB:       500,
		MaxDimension:         2048,
		MaxConcurrentWorkers: 0,
		ChunkSize:            500,
		ChunkPauseSeconds:    3,
		TempRoot:             defaultTempRoot(),
		KeywordsMode:         MetadataAppend,
		DescriptionMode:      MetadataAppend,
		Organizer:            DefaultOrganizerConfig(),
	}
}

func defaultTempRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return os.TempDir()
	}
	return dir + "/racetagger-pipeline"
}

// RecognitionConfig tunes the matcher's pre-filter over raw recognitions.
type RecognitionConfig struct {
	MinConfidence         float64 `yaml:"minConfidence"`
	MaxResults            int     `yaml:"maxResults"`
	ConfidenceDecayFactor float64 `yaml:"confidenceDecayFactor"`
	RelativeConfidenceGap float64 `yaml:"relativeConfidenceGap"`
}

// EvidenceWeights weighs each evidence kind's contribution to a score.
type EvidenceWeights struct {
	RaceNumber float64 `yaml:"raceNumber"`
	DriverName float64 `yaml:"driverName"`
	Team       float64 `yaml:"team"`
	Sponsor    float64 `yaml:"sponsor"`
}

// MatchThresholds governs selection-rule decisions (spec §4.4).
type MatchThresholds struct {
	MinimumScore            float64 `yaml:"minimumScore"`
	ClearWinner             float64 `yaml:"clearWinner"`
	StrongNonNumberEvidence float64 `yaml:"strongNonNumberEvidence"`
	NameSimilarity          float64 `yaml:"nameSimilarity"`
}

// TemporalConfig governs clustering and the matcher's temporal bonus.
type TemporalConfig struct {
	Window       int     `yaml:"windowSeconds"`
	BurstMinimum int     `yaml:"burstMinimum"`
	MaxBonus     float64 `yaml:"maxBonus"`
}

// SportCategoryConfig bundles every per-category tunable the matcher,
// temporal clustering, and metadata writer consult.
type SportCategoryConfig struct {
	Name                   string             `yaml:"name"`
	ProtocolVersion        string             `yaml:"protocolVersion"` // v2 | v3 | v4
	IndividualCompetition  bool               `yaml:"individualCompetition"`
	DriverLabel            string             `yaml:"driverLabel"` // "Driver(s)", "Athlete(s)", "Participant(s)"
	Weights                EvidenceWeights    `yaml:"weights"`
	Thresholds             MatchThresholds    `yaml:"thresholds"`
	Recognition            RecognitionConfig  `yaml:"recognition"`
	Temporal               TemporalConfig     `yaml:"temporal"`
}

// DefaultMotorsportConfig returns the sport-category defaults used by the
// spec's worked examples (§8 scenarios).
func DefaultMotorsportConfig() SportCategoryConfig {
	return SportCategoryConfig{
		Name:                  "motorsport",
		ProtocolVersion:       "v2",
		IndividualCompetition: false,
		DriverLabel:           "Driver(s)",
		Weights: EvidenceWeights{
			RaceNumber: 50,
			DriverName: 30,
			Team:       15,
			Sponsor:    10,
		},
		Thresholds: MatchThresholds{
			MinimumScore:            20,
			ClearWinner:             25,
			StrongNonNumberEvidence: 35,
			NameSimilarity:          0.75,
		},
		Recognition: RecognitionConfig{
			MinConfidence:         0.3,
			MaxResults:            5,
			ConfidenceDecayFactor: 0.85,
			RelativeConfidenceGap: 0.35,
		},
		Temporal: TemporalConfig{
			Window:       5,
			BurstMinimum: 3,
			MaxBonus:     15,
		},
	}
}

// LoadSportCategoryConfig reads a YAML category config, starting from
// DefaultMotorsportConfig() and overriding whatever the file specifies.
func LoadSportCategoryConfig(path string) (SportCategoryConfig, error) {
	cfg := DefaultMotorsportConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read sport category config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse sport category config: %w", err)
	}
	return cfg, nil
}

// LoadProcessorConfig reads a YAML processor config, starting from
// DefaultProcessorConfig() and overriding whatever the file specifies.
func LoadProcessorConfig(path string) (ProcessorConfig, error) {
	cfg := DefaultProcessorConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read processor config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse processor config: %w", err)
	}
	return cfg, nil
}
