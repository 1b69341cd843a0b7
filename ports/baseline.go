package ports

import (
	"neurosig/domain/session"
	"neurosig/domain/stats"
)

// ArtifactPredicate decides whether a window counts for baseline estimation.
// Device-specific artifact rejection lives entirely behind this hook.
type ArtifactPredicate func(session.FeatureWindow) bool

// BaselineProvider supplies baseline statistics to the significance engine.
// The default provider estimates from the recorder's baseline phase; tests
// and replay tooling can substitute fixed statistics.
type BaselineProvider interface {
	Baseline() (*stats.BaselineStats, error)
}
