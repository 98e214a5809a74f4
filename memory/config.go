package memory

import "time"

// Config holds every budget, threshold and timing used by the engine.
// All word budgets count whitespace-delimited tokens (see budget.Count).
type Config struct {
	// WorkingBudget caps the words held by one session.
	// Default: 700
	WorkingBudget int

	// EpisodicBudget caps the words of one conversation record.
	// Default: 500
	EpisodicBudget int

	// LongTermPerCategory caps the words of each long-term category.
	// Default: 350
	LongTermPerCategory int

	// LongTermTotal is the documented profile-wide ceiling.
	// Default: 1800. Reported by stats only; insertion enforces the per-category budget.
	LongTermTotal int

	// NarrativeMaxWords caps a rendered narrative.
	// Default: 750
	NarrativeMaxWords int

	// NearLimitThreshold is the fraction of budget that triggers compression.
	// Default: 0.8
	NearLimitThreshold float64

	// CompressionTarget is the fraction of budget compression aims for.
	// Default: 0.6
	CompressionTarget float64

	// NarrativePruneThreshold and NarrativePruneFraction drive the stateful
	// narrative manager: once the narrative reaches 90% of its budget the
	// lowest 20% of unpinned events are dropped.
	NarrativePruneThreshold float64
	NarrativePruneFraction  float64

	// NarrativeMaxEvents bounds the events stored per conversation.
	// Default: 60
	NarrativeMaxEvents int

	// MinImpactForLongTerm gates admission to long-term storage.
	// Default: 0.7
	MinImpactForLongTerm float64

	// MinImpactToKeep is the general retention floor.
	// Default: 0.5
	MinImpactToKeep float64

	// MergeThreshold is the cosine similarity above which a proposal merges
	// into an existing item instead of being inserted.
	// Default: 0.85
	MergeThreshold float64

	// ClassifierFloor and ClassifierTopN bound classifier output.
	// Defaults: 30, 3
	ClassifierFloor float64
	ClassifierTopN  int

	// RefineBelowScore sends classification to the TextService when the best
	// rule-based score is lower.
	// Default: 60
	RefineBelowScore float64

	// RefinedMaxWords caps a long-term item's content.
	// Default: 60
	RefinedMaxWords int

	// DescriptionMaxWords caps category descriptions.
	// Default: 25
	DescriptionMaxWords int

	// DescriptionEvery and DescriptionMaxAge decide when a category
	// description is regenerated.
	// Defaults: every 5th accepted item, 7 days
	DescriptionEvery  int
	DescriptionMaxAge time.Duration

	// SessionTimeout is the working memory inactivity timeout.
	// Default: 40 minutes
	SessionTimeout time.Duration

	// SweepInterval is how often expired sessions and documents are reclaimed.
	// Default: 1 minute
	SweepInterval time.Duration

	// EpisodicTTL is the soft expiry; EpisodicPurgeAfter the hard delete.
	// Defaults: 30 days, 90 days
	EpisodicTTL        time.Duration
	EpisodicPurgeAfter time.Duration

	// ExternalTimeout bounds every TextService and Embedder call.
	// Default: 8 seconds
	ExternalTimeout time.Duration

	// Workers and QueueSize size the background processing pool.
	// Defaults: 4, 256
	Workers   int
	QueueSize int

	// RetrieveLimit caps long-term items returned by BuildContext.
	// Default: 12
	RetrieveLimit int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkingBudget:           700,
		EpisodicBudget:          500,
		LongTermPerCategory:     350,
		LongTermTotal:           1800,
		NarrativeMaxWords:       750,
		NearLimitThreshold:      0.8,
		CompressionTarget:       0.6,
		NarrativePruneThreshold: 0.9,
		NarrativePruneFraction:  0.2,
		NarrativeMaxEvents:      60,
		MinImpactForLongTerm:    0.7,
		MinImpactToKeep:         0.5,
		MergeThreshold:          0.85,
		ClassifierFloor:         30,
		ClassifierTopN:          3,
		RefineBelowScore:        60,
		RefinedMaxWords:         60,
		DescriptionMaxWords:     25,
		DescriptionEvery:        5,
		DescriptionMaxAge:       7 * 24 * time.Hour,
		SessionTimeout:          40 * time.Minute,
		SweepInterval:           time.Minute,
		EpisodicTTL:             30 * 24 * time.Hour,
		EpisodicPurgeAfter:      90 * 24 * time.Hour,
		ExternalTimeout:         8 * time.Second,
		Workers:                 4,
		QueueSize:               256,
		RetrieveLimit:           12,
	}
}

// EpisodicCompressAt is the word count at which episodic compression triggers.
func (c *Config) EpisodicCompressAt() int {
	return int(float64(c.EpisodicBudget) * c.NearLimitThreshold)
}

// EpisodicTarget is the word count episodic compression aims for.
func (c *Config) EpisodicTarget() int {
	return int(float64(c.EpisodicBudget) * c.CompressionTarget)
}
