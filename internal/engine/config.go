package engine

// Mode selects how per-feature decisions feed the task-level outcome.
type Mode string

const (
	// ModeAggregateOnly relies on Fisher/SumP only; no per-feature FDR.
	ModeAggregateOnly Mode = "aggregate_only"
	// ModeFeatureSelection additionally BH-corrects across features.
	ModeFeatureSelection Mode = "feature_selection"
)

// Correction selects the dependence correction for Fisher's method.
type Correction string

const (
	CorrectionKostMcDermott Correction = "Kost-McDermott"
	CorrectionNone          Correction = "none"
)

// EffectMeasure selects the block-level effect used by the cross-task
// omnibus matrix and rankings.
type EffectMeasure string

const (
	EffectDelta EffectMeasure = "delta"
	EffectZ     EffectMeasure = "z"
)

// OmnibusMethod selects the cross-task omnibus test.
type OmnibusMethod string

const (
	OmnibusFriedman OmnibusMethod = "friedman"
	OmnibusRMAnova  OmnibusMethod = "rm_anova"
)

// Config carries every independently overridable analysis setting. Unknown
// enum values are coerced to defaults by Normalized at construction time,
// never deferred to analysis time.
type Config struct {
	Alpha    float64 `json:"alpha"`
	FDRAlpha float64 `json:"fdr_alpha"`

	Mode       Mode       `json:"mode"`
	Dependence Correction `json:"dependence_correction"`

	UsePermutation bool `json:"use_permutation_for_sump"`
	NPerm          int  `json:"n_perm"`

	DiscretizationBins int           `json:"discretization_bins"`
	EffectMeasure      EffectMeasure `json:"effect_measure"`
	OmnibusMethod      OmnibusMethod `json:"omnibus_method"`

	BlockSeconds float64 `json:"block_seconds"`
	// WindowSeconds is the assumed window cadence for the timestamp-free
	// blocking fallback.
	WindowSeconds float64 `json:"window_seconds"`

	NminSessions int `json:"nmin_sessions"`

	// Seed makes equalization and permutation reproducible. When nil, a
	// time-derived seed is drawn and recorded in the output.
	Seed *int64 `json:"seed,omitempty"`

	// Global floors layered on top of the band-specific thresholds.
	MinEffectSize    float64 `json:"min_effect_size"`
	MinPercentChange float64 `json:"min_percent_change"`

	// CorrelationGuard skips the Kost-McDermott correction when the block
	// count is too small for a usable Spearman matrix.
	CorrelationGuard bool `json:"correlation_guard"`

	// ExactDistributions selects the gonum-backed provider; when false the
	// engine runs on documented normal approximations and flags results.
	ExactDistributions bool `json:"exact_distributions"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Alpha:              0.05,
		FDRAlpha:           0.05,
		Mode:               ModeAggregateOnly,
		Dependence:         CorrectionKostMcDermott,
		UsePermutation:     true,
		NPerm:              1000,
		DiscretizationBins: 5,
		EffectMeasure:      EffectDelta,
		OmnibusMethod:      OmnibusFriedman,
		BlockSeconds:       8.0,
		WindowSeconds:      2.0,
		NminSessions:       2,
		CorrelationGuard:   true,
		ExactDistributions: true,
	}
}

// Normalized coerces every out-of-range or unknown value to its default.
func (c Config) Normalized() Config {
	d := DefaultConfig()

	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = d.Alpha
	}
	if c.FDRAlpha <= 0 || c.FDRAlpha >= 1 {
		c.FDRAlpha = d.FDRAlpha
	}
	switch c.Mode {
	case ModeAggregateOnly, ModeFeatureSelection:
	default:
		c.Mode = d.Mode
	}
	switch c.Dependence {
	case CorrectionKostMcDermott, CorrectionNone:
	default:
		c.Dependence = d.Dependence
	}
	if c.NPerm < 1 {
		c.NPerm = d.NPerm
	}
	if c.DiscretizationBins < 2 {
		c.DiscretizationBins = d.DiscretizationBins
	}
	switch c.EffectMeasure {
	case EffectDelta, EffectZ:
	default:
		c.EffectMeasure = d.EffectMeasure
	}
	switch c.OmnibusMethod {
	case OmnibusFriedman, OmnibusRMAnova:
	default:
		c.OmnibusMethod = d.OmnibusMethod
	}
	if c.BlockSeconds <= 0 {
		c.BlockSeconds = d.BlockSeconds
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = d.WindowSeconds
	}
	if c.NminSessions < 1 {
		c.NminSessions = d.NminSessions
	}
	if c.MinEffectSize < 0 {
		c.MinEffectSize = 0
	}
	if c.MinPercentChange < 0 {
		c.MinPercentChange = 0
	}
	return c
}
