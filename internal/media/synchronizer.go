package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tariel-x/lookbook/internal/metrics"
)

// CleanupResult is the settled state of one ref.
type CleanupResult string

const (
	CleanupDeleted CleanupResult = "deleted"
	CleanupSkipped CleanupResult = "skipped"
	CleanupFailed  CleanupResult = "failed"
)

// CleanupOutcome describes what happened to a single asset reference.
type CleanupOutcome struct {
	Ref      string        `json:"ref"`
	PublicID string        `json:"public_id,omitempty"`
	Kind     Kind          `json:"kind"`
	Result   CleanupResult `json:"result"`
	Err      error         `json:"-"`
}

// Report aggregates cleanup outcomes. Attempted counts store calls only, so
// Attempted == Deleted + Failed and skipped refs are reported separately.
type Report struct {
	Attempted int              `json:"attempted"`
	Deleted   int              `json:"deleted"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Outcomes  []CleanupOutcome `json:"outcomes,omitempty"`
}

func (r *Report) add(o CleanupOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Result {
	case CleanupDeleted:
		r.Attempted++
		r.Deleted++
	case CleanupFailed:
		r.Attempted++
		r.Failed++
	case CleanupSkipped:
		r.Skipped++
	}
}

// Synchronizer removes objects that are no longer referenced by a catalog
// row. It is best-effort: failures are logged and counted, never returned.
type Synchronizer struct {
	store   ObjectStore
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewSynchronizer(store ObjectStore, logger *slog.Logger, m *metrics.Metrics) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{store: store, logger: logger, metrics: m}
}

func (s *Synchronizer) DeleteAssets(ctx context.Context, refs []string, kind Kind) Report {
	var report Report
	for _, ref := range refs {
		outcome := s.deleteOne(ctx, ref, kind)
		s.metrics.MediaCleanup(string(kind), string(outcome.Result))
		report.add(outcome)
	}
	return report
}

func (s *Synchronizer) deleteOne(ctx context.Context, ref string, kind Kind) (outcome CleanupOutcome) {
	outcome = CleanupOutcome{Ref: ref, Kind: kind}

	publicID, ok := ExtractPublicID(ref)
	if !ok {
		s.logger.WarnContext(ctx, "media cleanup skipped: unparseable ref", "ref", ref, "kind", kind)
		outcome.Result = CleanupSkipped
		return outcome
	}
	outcome.PublicID = publicID

	defer func() {
		if r := recover(); r != nil {
			outcome.Result = CleanupFailed
			outcome.Err = fmt.Errorf("object store panic: %v", r)
			s.logger.ErrorContext(ctx, "media cleanup panicked", "public_id", publicID, "kind", kind, "panic", r)
		}
	}()

	if err := s.store.Delete(ctx, publicID, kind); err != nil {
		s.logger.WarnContext(ctx, "media cleanup failed", "public_id", publicID, "kind", kind, "error", err)
		outcome.Result = CleanupFailed
		outcome.Err = err
		return outcome
	}
	s.logger.InfoContext(ctx, "media object deleted", "public_id", publicID, "kind", kind)
	outcome.Result = CleanupDeleted
	return outcome
}
