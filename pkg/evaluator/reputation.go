package evaluator

type InteractionType string

const (
	InteractionPositive InteractionType = "positive"
	InteractionNegative InteractionType = "negative"
	InteractionMixed    InteractionType = "mixed"
	InteractionNeutral  InteractionType = "neutral"
)

// Keyword categories. Weights here feed confidence only; the delta is
// computed from category combinations in Reputation.
var reputationCategories = []rule{
	{name: "positive", match: words(`thank\w*`, `success\w*`, `great\b`, `excellent\b`, `awesome\b`, `perfect\w*`, `good\b`, `appreciat\w*`, `reliable\b`, `impressive\b`)},
	{name: "negative", match: words(`fail\w*`, `scam\w*`, `late\b`, `poor\w*`, `bad\b`, `terrible\b`, `disappoint\w*`, `fraud\w*`, `broken\b`, `unreliable\b`, `useless\b`)},
	{name: "completion", match: words(completionTerms...)},
	{name: "transaction", match: words(transactionTerms...)},
	{name: "collaboration", match: words(append([]string{`project\w*`, `together\b`}, collaborationTerms...)...)},
}

var trustIndicators = []rule{
	{name: "professional_language", match: words(`please\b`, `thank\w*`, `appreciat\w*`, `regards\b`, `kindly\b`, `sincerely\b`)},
	{name: "detailed", match: func(text string) bool { return len(text) > 50 }},
	// Timeliness cannot be judged from one message.
	{name: "timely", match: always},
	{name: "protocol_adherence", match: words(`protocol\w*`, `escrow\w*`, `channels?\b`, `on-chain\b`, `contract\w*`, `agreement\w*`, `deadline\w*`)},
	{name: "completion", match: words(completionTerms...)},
}

type ReputationEvaluation struct {
	Score           float64         `json:"score"`
	Delta           int             `json:"reputationDelta"`
	Confidence      float64         `json:"confidence"`
	TrustScore      float64         `json:"trustScore"`
	TrustSignals    []string        `json:"trustSignals"`
	InteractionType InteractionType `json:"interactionType"`
	Categories      []string        `json:"categories"`
	Error           string          `json:"error,omitempty"`
}

// Reputation derives a signed reputation delta from text and maps it to a
// [0,1] score centred on zero change.
func Reputation(text string) ReputationEvaluation {
	if blank(text) {
		return ReputationEvaluation{
			InteractionType: InteractionNeutral,
			TrustSignals:    []string{},
			Categories:      []string{},
			Error:           ErrEmptyMessage,
		}
	}

	cats := apply(reputationCategories, text)
	positive, negative := cats.has("positive"), cats.has("negative")
	completion := cats.has("completion")

	delta := 0
	if positive {
		delta += 2
	}
	if negative {
		delta -= 3
	}
	if completion && positive {
		delta += 3
	}
	if cats.has("transaction") && completion {
		delta++
	}
	if cats.has("collaboration") && positive {
		delta++
	}

	trust := apply(trustIndicators, text)
	ev := ReputationEvaluation{
		Score:        clamp01(float64(delta+5) / 10),
		Delta:        delta,
		Confidence:   clamp01(0.1 + 0.2*float64(len(cats.matched))),
		TrustScore:   float64(len(trust.matched)) / float64(len(trustIndicators)),
		TrustSignals: trust.matched,
		Categories:   cats.matched,
	}
	if ev.Categories == nil {
		ev.Categories = []string{}
	}

	switch {
	case positive && negative:
		ev.InteractionType = InteractionMixed
	case positive:
		ev.InteractionType = InteractionPositive
	case negative:
		ev.InteractionType = InteractionNegative
	default:
		ev.InteractionType = InteractionNeutral
	}
	return ev
}
