package evaluator

type Potential string

const (
	PotentialLow    Potential = "low"
	PotentialMedium Potential = "medium"
	PotentialHigh   Potential = "high"
)

// collaborationMax is the raw score at which the normalized score reaches 1.
const collaborationMax = 10

var (
	mentionsAgent   = words(agentTerms...)
	discoveryIntent = pattern(`\b(?:find|discover|search(?:ing)? for|looking for|locate|who can)\b`)
)

var collaborationRules = []rule{
	{name: "collaboration", weight: 3, match: words(collaborationTerms...)},
	{name: "agent", weight: 2, match: mentionsAgent},
	{name: "transaction", weight: 1, match: words(transactionTerms...)},
	{name: "capability_query", weight: 2, match: pattern(`\b(?:can you|are you able to|do you (?:know how|support|offer)|what (?:can|do) you|capabilit\w*|skills?\b)`)},
	{name: "discovery", weight: 2, match: func(text string) bool {
		return discoveryIntent(text) && mentionsAgent(text)
	}},
}

type CollaborationEvaluation struct {
	Score     float64   `json:"score"`
	Raw       float64   `json:"rawScore"`
	Potential Potential `json:"collaborationPotential"`
	Signals   []string  `json:"signals"`
	Error     string    `json:"error,omitempty"`
}

// Collaboration rates how likely text is to open a collaboration between
// agents. The potential bucket is taken from the raw sum; the score is the
// raw sum over collaborationMax, clamped to [0,1].
func Collaboration(text string) CollaborationEvaluation {
	if blank(text) {
		return CollaborationEvaluation{Potential: PotentialLow, Signals: []string{}, Error: ErrEmptyMessage}
	}

	f := apply(collaborationRules, text)
	ev := CollaborationEvaluation{
		Score:     clamp01(f.total / collaborationMax),
		Raw:       f.total,
		Potential: PotentialLow,
		Signals:   f.matched,
	}
	if ev.Signals == nil {
		ev.Signals = []string{}
	}
	switch {
	case f.total > 2:
		ev.Potential = PotentialHigh
	case f.total > 0:
		ev.Potential = PotentialMedium
	}
	return ev
}
