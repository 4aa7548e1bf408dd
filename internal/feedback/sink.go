package feedback

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fraudlens/fraudlens/internal/domain"
)

// Learner receives confirmed outcomes. The agent registry satisfies this by
// appending to every analyzer's knowledge log.
type Learner interface {
	RecordOutcome(f domain.Feedback)
}

// Sink receives verdicts from the analyst-feedback topic. Each verdict is
// persisted and handed to the learner; the pipeline's bus adapter does the
// decoding and skips malformed records before they reach the sink.
type Sink struct {
	store   Store
	learner Learner
}

// NewSink builds a Sink. learner may be nil when no agents are attached.
func NewSink(store Store, learner Learner) *Sink {
	return &Sink{store: store, learner: learner}
}

// Process records one verdict. Store failures surface to the caller so the
// bus retry policy applies.
func (s *Sink) Process(ctx context.Context, f domain.Feedback) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if err := s.store.Record(ctx, f); err != nil {
		return fmt.Errorf("recording feedback for %s: %w", f.TransactionID, err)
	}
	if s.learner != nil {
		s.learner.RecordOutcome(f)
	}
	log.Info().
		Str("transaction", f.TransactionID).
		Bool("actual_fraud", f.ActualFraud).
		Msg("AI LEARNING: processing analyst feedback")
	return nil
}
