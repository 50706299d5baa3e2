package evaluator

import (
	"math"
	"reflect"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCollaboration(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		raw       float64
		potential Potential
	}{
		{"all signals", "Can you help me find an agent to collaborate on a paid escrow?", 10, PotentialHigh},
		{"verbs agents value", "Let's collaborate with other agents on this escrow payment", 6, PotentialHigh},
		{"capability query only", "Can you do this?", 2, PotentialMedium},
		{"discovery without agent", "I want to find a good restaurant", 0, PotentialLow},
		{"nothing", "hello there", 0, PotentialLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Collaboration(tt.text)
			if ev.Raw != tt.raw {
				t.Errorf("Raw = %v, want %v (signals %v)", ev.Raw, tt.raw, ev.Signals)
			}
			if !approx(ev.Score, tt.raw/10) {
				t.Errorf("Score = %v, want %v", ev.Score, tt.raw/10)
			}
			if ev.Potential != tt.potential {
				t.Errorf("Potential = %q, want %q", ev.Potential, tt.potential)
			}
			if ev.Error != "" {
				t.Errorf("Error = %q, want empty", ev.Error)
			}
		})
	}
}

func TestCollaborationScoreBounded(t *testing.T) {
	text := "Can you help? Let's partner and team up: find agents, bots and peers on the network. " +
		"Who can assist with payment, escrow, token rewards and fees? What skills and capabilities do you offer?"
	ev := Collaboration(text)
	if ev.Score > 1 || ev.Score < 0 {
		t.Errorf("Score = %v, want within [0,1]", ev.Score)
	}
}

func TestReputationPositiveCompletion(t *testing.T) {
	ev := Reputation("Thank you, the project was completed successfully")
	if ev.InteractionType != InteractionPositive {
		t.Errorf("InteractionType = %q, want positive", ev.InteractionType)
	}
	if ev.Delta < 5 {
		t.Errorf("Delta = %d, want >= 5", ev.Delta)
	}
	if ev.Confidence > 1 {
		t.Errorf("Confidence = %v, want <= 1", ev.Confidence)
	}
	if ev.Score != 1 {
		t.Errorf("Score = %v, want 1", ev.Score)
	}
	if !approx(ev.TrustScore, 0.6) {
		t.Errorf("TrustScore = %v, want 0.6 (signals %v)", ev.TrustScore, ev.TrustSignals)
	}
}

func TestReputation(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		typ   InteractionType
		delta int
		score float64
		conf  float64
	}{
		{"negative", "The delivery failed and the agent was late", InteractionNegative, -3, 0.2, 0.5},
		{"mixed", "Great work but the payment failed", InteractionMixed, -1, 0.4, 0.7},
		{"neutral", "The weather is cloudy", InteractionNeutral, 0, 0.5, 0.1},
		{"paid on delivery", "Payment sent, the report was delivered", InteractionNeutral, 1, 0.6, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Reputation(tt.text)
			if ev.InteractionType != tt.typ {
				t.Errorf("InteractionType = %q, want %q", ev.InteractionType, tt.typ)
			}
			if ev.Delta != tt.delta {
				t.Errorf("Delta = %d, want %d (categories %v)", ev.Delta, tt.delta, ev.Categories)
			}
			if !approx(ev.Score, tt.score) {
				t.Errorf("Score = %v, want %v", ev.Score, tt.score)
			}
			if !approx(ev.Confidence, tt.conf) {
				t.Errorf("Confidence = %v, want %v", ev.Confidence, tt.conf)
			}
		})
	}
}

func TestReputationConfidenceCapped(t *testing.T) {
	ev := Reputation("Thanks, great teamwork together! The escrow payment completed but one step failed.")
	if ev.Confidence > 1 {
		t.Errorf("Confidence = %v, want <= 1", ev.Confidence)
	}
	if ev.InteractionType != InteractionMixed {
		t.Errorf("InteractionType = %q, want mixed", ev.InteractionType)
	}
}

func TestQuality(t *testing.T) {
	text := "Hello! I need an agent to review our protocol integration. What capabilities do you offer, " +
		"and can we collaborate on the escrow payment together? I understand the deadline is tight. Thank you, best regards."

	ev := Quality(text)
	if !approx(ev.Clarity, 0.875) {
		t.Errorf("Clarity = %v, want 0.875", ev.Clarity)
	}
	if !approx(ev.Engagement, 0.6) {
		t.Errorf("Engagement = %v, want 0.6", ev.Engagement)
	}
	if !approx(ev.Professionalism, 1) {
		t.Errorf("Professionalism = %v, want 1", ev.Professionalism)
	}
	if !approx(ev.ContextAwareness, 1) {
		t.Errorf("ContextAwareness = %v, want 1", ev.ContextAwareness)
	}
	if !approx(ev.Score, 0.8425) {
		t.Errorf("Score = %v, want 0.8425", ev.Score)
	}
	if ev.Level != LevelExcellent {
		t.Errorf("Level = %q, want excellent", ev.Level)
	}

	wantStrengths := []string{"clear communication", "professional tone", "strong context awareness"}
	if !reflect.DeepEqual(ev.Strengths, wantStrengths) {
		t.Errorf("Strengths = %v, want %v", ev.Strengths, wantStrengths)
	}
	wantSuggestions := []string{"Break the request into steps or a list", "Express interest in the other agent's work"}
	if !reflect.DeepEqual(ev.Suggestions, wantSuggestions) {
		t.Errorf("Suggestions = %v, want %v", ev.Suggestions, wantSuggestions)
	}
}

func TestQualityTerse(t *testing.T) {
	ev := Quality("ok")
	if !approx(ev.Score, 0.04) {
		t.Errorf("Score = %v, want 0.04", ev.Score)
	}
	if ev.Level != LevelLow {
		t.Errorf("Level = %q, want low", ev.Level)
	}
	if len(ev.Strengths) != 0 {
		t.Errorf("Strengths = %v, want none", ev.Strengths)
	}
	if len(ev.Suggestions) == 0 {
		t.Error("expected suggestions for a terse message")
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{1, LevelExcellent},
		{0.8, LevelExcellent},
		{0.79, LevelGood},
		{0.6, LevelGood},
		{0.4, LevelFair},
		{0.2, LevelPoor},
		{0.19, LevelLow},
		{0, LevelLow},
	}
	for _, tt := range tests {
		if got := levelFor(tt.score); got != tt.want {
			t.Errorf("levelFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEmptyText(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		c := Collaboration(text)
		if c.Score != 0 || c.Potential != PotentialLow || c.Error != ErrEmptyMessage {
			t.Errorf("Collaboration(%q) = %+v", text, c)
		}
		r := Reputation(text)
		if r.Score != 0 || r.InteractionType != InteractionNeutral || r.Error != ErrEmptyMessage {
			t.Errorf("Reputation(%q) = %+v", text, r)
		}
		q := Quality(text)
		if q.Score != 0 || q.Level != LevelLow || q.Error != ErrEmptyMessage {
			t.Errorf("Quality(%q) = %+v", text, q)
		}
	}
}

func TestDeterministic(t *testing.T) {
	text := "Can you help our agents settle the escrow? Thanks!"
	for _, name := range Names() {
		first, err := Run(name, text)
		if err != nil {
			t.Fatalf("Run(%q): %v", name, err)
		}
		for i := 0; i < 5; i++ {
			again, _ := Run(name, text)
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("%s: run %d differs", name, i)
			}
		}
	}
}

func TestRunUnknown(t *testing.T) {
	if _, err := Run("sentiment", "hi"); err == nil {
		t.Error("expected error for unknown evaluator")
	}
	if got := Names(); !reflect.DeepEqual(got, []string{"collaboration", "quality", "reputation"}) {
		t.Errorf("Names() = %v", got)
	}
}
