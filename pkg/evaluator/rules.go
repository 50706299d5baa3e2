// Package evaluator scores free text for collaboration potential, reputation
// signal and interaction quality. Every scorer is a pure function over a
// table of rules.
package evaluator

import (
	"regexp"
	"strings"
)

const ErrEmptyMessage = "empty message"

// rule is one weighted signal. hint is offered as an improvement suggestion
// when the rule does not match.
type rule struct {
	name   string
	weight float64
	match  func(text string) bool
	hint   string
}

// words matches any of the given terms at a word start, case-insensitively.
// Terms may carry their own regexp suffixes such as `\w*` or `\b`.
func words(terms ...string) func(string) bool {
	re := regexp.MustCompile(`(?i)\b(?:` + strings.Join(terms, "|") + `)`)
	return re.MatchString
}

func pattern(expr string) func(string) bool {
	return regexp.MustCompile(`(?i)` + expr).MatchString
}

func always(string) bool { return true }

type fold struct {
	total   float64
	matched []string
	missing []rule
}

func apply(rules []rule, text string) fold {
	var f fold
	for _, r := range rules {
		if r.match(text) {
			f.total += r.weight
			f.matched = append(f.matched, r.name)
			continue
		}
		f.missing = append(f.missing, r)
	}
	return f
}

func (f fold) has(name string) bool {
	for _, m := range f.matched {
		if m == name {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func blank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Shared vocabularies.
var (
	collaborationTerms = []string{`collaborat\w*`, `work(?:ing)? together`, `partner\w*`, `team(?:ing)? up`, `join forces`, `cooperat\w*`, `help\w*`, `assist\w*`}
	agentTerms         = []string{`agents?\b`, `bots?\b`, `network\w*`, `peers?\b`}
	transactionTerms   = []string{`pay\w*`, `escrow\w*`, `tokens?\b`, `transaction\w*`, `fund\w*`, `price\w*`, `fees?\b`, `reward\w*`}
	completionTerms    = []string{`complet\w*`, `done\b`, `finish\w*`, `deliver\w*`}
)
