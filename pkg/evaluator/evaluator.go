package evaluator

import (
	"fmt"
	"sort"
)

const (
	NameCollaboration = "collaboration"
	NameReputation    = "reputation"
	NameQuality       = "quality"
)

// Result is the common view of the three evaluations.
type Result interface {
	Normalized() float64
	Label() string
	Failure() string
}

func (e CollaborationEvaluation) Normalized() float64 { return e.Score }
func (e CollaborationEvaluation) Label() string       { return string(e.Potential) }
func (e CollaborationEvaluation) Failure() string     { return e.Error }

func (e ReputationEvaluation) Normalized() float64 { return e.Score }
func (e ReputationEvaluation) Label() string       { return string(e.InteractionType) }
func (e ReputationEvaluation) Failure() string     { return e.Error }

func (e QualityEvaluation) Normalized() float64 { return e.Score }
func (e QualityEvaluation) Label() string       { return string(e.Level) }
func (e QualityEvaluation) Failure() string     { return e.Error }

var scorers = map[string]func(string) Result{
	NameCollaboration: func(t string) Result { return Collaboration(t) },
	NameReputation:    func(t string) Result { return Reputation(t) },
	NameQuality:       func(t string) Result { return Quality(t) },
}

func Names() []string {
	names := make([]string, 0, len(scorers))
	for n := range scorers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run scores text with the named evaluator.
func Run(name, text string) (Result, error) {
	fn, ok := scorers[name]
	if !ok {
		return nil, fmt.Errorf("evaluator: unknown evaluator %q", name)
	}
	return fn(text), nil
}
