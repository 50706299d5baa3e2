package plugin

import (
	"context"
	"strings"
	"time"

	"github.com/igorsilveira/clawnet/pkg/evaluator"
	"github.com/igorsilveira/clawnet/pkg/protocol"
	"github.com/igorsilveira/clawnet/pkg/telemetry"
)

// TextEvaluator exposes one of the evaluator package scorers. It reads
// nothing from the coordinator beyond checking that it is initialized.
type TextEvaluator struct {
	Coord     *protocol.Coordinator
	Evaluator string
	Now       func() time.Time
}

func (e *TextEvaluator) Name() string { return e.Evaluator }
func (e *TextEvaluator) Kind() Kind   { return KindEvaluator }

func (e *TextEvaluator) Description() string {
	switch e.Evaluator {
	case evaluator.NameCollaboration:
		return "Scores how likely a message is to open a collaboration."
	case evaluator.NameReputation:
		return "Derives a reputation delta and trust signals from a message."
	case evaluator.NameQuality:
		return "Grades clarity, engagement, professionalism and context awareness."
	}
	return "Scores message text."
}

func (e *TextEvaluator) Validate(_ context.Context, req Request) bool {
	return strings.TrimSpace(req.Text) != "" && e.Coord.Initialized()
}

func (e *TextEvaluator) Handle(_ context.Context, req Request) (Evaluation, error) {
	res, err := evaluator.Run(e.Evaluator, req.Text)
	if err != nil {
		return Evaluation{}, err
	}

	outcome := res.Label()
	if res.Failure() != "" {
		outcome = "error"
	}
	telemetry.Metrics.Evaluations.WithLabelValues(e.Evaluator, outcome).Inc()
	telemetry.Metrics.EvaluationScore.WithLabelValues(e.Evaluator).Observe(res.Normalized())

	now := time.Now().UTC()
	if e.Now != nil {
		now = e.Now()
	}
	return Evaluation{Score: res.Normalized(), Evaluation: res, Timestamp: now}, nil
}
