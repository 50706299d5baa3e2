package evaluator

import "strings"

type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
	LevelLow       Level = "low"
)

const clarityMax = 8

const strengthThreshold = 0.7

var clarityRules = []rule{
	{name: "detail", weight: 1, match: func(t string) bool { return len(t) > 50 }, hint: "Add more detail about what you need"},
	{name: "elaboration", weight: 1, match: func(t string) bool { return len(t) > 150 }},
	{name: "question", weight: 1, match: pattern(`\?`), hint: "Ask a direct question to invite a response"},
	{name: "actionable", weight: 2, match: words(`need\w*`, `want\w*`, `requir\w*`, `create\w*`, `send\w*`, `build\w*`, `review\w*`, `analy\w*`, `deliver\w*`, `provid\w*`, `implement\w*`), hint: "State the concrete action you want taken"},
	{name: "specificity", weight: 1, match: words(`what\b`, `when\b`, `where\b`, `which\b`, `how\b`, `who\b`, `why\b`), hint: "Be specific about what, when or how"},
	{name: "structure", weight: 1, match: pattern(`(?m)^\s*(?:[-*]|\d+[.)])\s|:\s`), hint: "Break the request into steps or a list"},
	{name: "length", weight: 1, match: func(t string) bool { return len(strings.Fields(t)) >= 20 }, hint: "Expand the message beyond a few words"},
}

var engagementRules = []rule{
	{name: "enthusiasm", weight: 0.2, match: pattern(`\b(?:excit\w*|love\b|amazing\b|fantastic\b|awesome\b)|!`), hint: "Show some enthusiasm for the exchange"},
	{name: "affirmative", weight: 0.2, match: words(`yes\b`, `sure\b`, `absolutely\b`, `definitely\b`, `of course\b`, `sounds good\b`, `agreed?\b`)},
	{name: "interest", weight: 0.2, match: words(`interest\w*`, `curious\b`, `tell me more\b`, `would like to know\b`, `keen\b`), hint: "Express interest in the other agent's work"},
	{name: "question", weight: 0.2, match: pattern(`\?`)},
	{name: "collaborative", weight: 0.2, match: words(`let'?s\b`, `let us\b`, `we could\b`, `together\b`, `shall we\b`), hint: "Frame the request as a joint effort"},
}

var professionalismRules = []rule{
	{name: "politeness", weight: 0.25, match: words(`please\b`, `thank\w*`, `appreciat\w*`, `kindly\b`, `would you mind\b`), hint: "Use polite phrasing such as please or thank you"},
	{name: "greeting", weight: 0.2, match: words(`hello\b`, `hi\b`, `hey\b`, `greetings\b`, `good (?:morning|afternoon|evening)\b`, `dear\b`), hint: "Open with a greeting"},
	{name: "closing", weight: 0.15, match: words(`regards\b`, `best\b`, `cheers\b`, `sincerely\b`, `thanks in advance\b`, `looking forward\b`)},
	{name: "technical", weight: 0.2, match: words(`api\b`, `protocol\w*`, `contract\w*`, `blockchain\b`, `tokens?\b`, `wallet\w*`, `integration\w*`, `data\b`, `algorithm\w*`, `endpoint\w*`)},
	{name: "clean_language", weight: 0.2, match: func(t string) bool { return !profanity(t) }, hint: "Avoid profanity"},
}

var contextRules = []rule{
	{name: "protocol", weight: 0.2, match: words(`clawnet\b`, `protocol\w*`, `on-chain\b`, `blockchain\b`, `solana\b`), hint: "Reference the protocol you are operating on"},
	{name: "capability", weight: 0.2, match: words(`capabilit\w*`, `skills?\b`, `services?\b`, `expertise\b`), hint: "Mention the capabilities involved"},
	{name: "collaboration", weight: 0.2, match: words(collaborationTerms...)},
	{name: "transaction", weight: 0.2, match: words(transactionTerms...)},
	{name: "understanding", weight: 0.2, match: words(`i understand\b`, `understood\b`, `got it\b`, `makes sense\b`, `as you mentioned\b`, `as discussed\b`, `noted\b`), hint: "Acknowledge what the other agent said"},
}

var profanity = words(`damn\w*`, `shit\w*`, `fuck\w*`, `crap\w*`, `bullshit\b`, `wtf\b`)

type QualityEvaluation struct {
	Score            float64  `json:"score"`
	Level            Level    `json:"qualityLevel"`
	Clarity          float64  `json:"clarity"`
	Engagement       float64  `json:"engagement"`
	Professionalism  float64  `json:"professionalism"`
	ContextAwareness float64  `json:"contextAwareness"`
	Suggestions      []string `json:"suggestions"`
	Strengths        []string `json:"strengths"`
	Error            string   `json:"error,omitempty"`
}

// Quality grades how well a message communicates. Sub-scores are in [0,1]
// and combine 0.3/0.3/0.2/0.2 into the overall score.
func Quality(text string) QualityEvaluation {
	if blank(text) {
		return QualityEvaluation{
			Level:       LevelLow,
			Suggestions: []string{},
			Strengths:   []string{},
			Error:       ErrEmptyMessage,
		}
	}

	clarity := apply(clarityRules, text)
	engagement := apply(engagementRules, text)
	professionalism := apply(professionalismRules, text)
	awareness := apply(contextRules, text)

	ev := QualityEvaluation{
		Clarity:          clamp01(min(clarity.total, clarityMax) / clarityMax),
		Engagement:       clamp01(engagement.total),
		Professionalism:  clamp01(professionalism.total),
		ContextAwareness: clamp01(awareness.total),
		Suggestions:      []string{},
		Strengths:        []string{},
	}
	ev.Score = clamp01(0.3*ev.Clarity + 0.3*ev.Engagement + 0.2*ev.Professionalism + 0.2*ev.ContextAwareness)
	ev.Level = levelFor(ev.Score)

	for _, f := range []fold{clarity, engagement, professionalism, awareness} {
		for _, r := range f.missing {
			if r.hint != "" {
				ev.Suggestions = append(ev.Suggestions, r.hint)
			}
		}
	}

	strengths := []struct {
		score float64
		label string
	}{
		{ev.Clarity, "clear communication"},
		{ev.Engagement, "high engagement"},
		{ev.Professionalism, "professional tone"},
		{ev.ContextAwareness, "strong context awareness"},
	}
	for _, s := range strengths {
		if s.score >= strengthThreshold {
			ev.Strengths = append(ev.Strengths, s.label)
		}
	}
	return ev
}

func levelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelExcellent
	case score >= 0.6:
		return LevelGood
	case score >= 0.4:
		return LevelFair
	case score >= 0.2:
		return LevelPoor
	default:
		return LevelLow
	}
}
