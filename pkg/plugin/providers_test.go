package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/igorsilveira/clawnet/pkg/evaluator"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

func TestAgentStatusProvider(t *testing.T) {
	ctx := context.Background()

	var nilProvider AgentStatusProvider
	if _, err := nilProvider.Get(ctx, Request{}); !errors.Is(err, protocol.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}

	coord, _ := testCoordinator(t, testSettings())
	p := &AgentStatusProvider{Coord: coord}

	snap, err := p.Get(ctx, Request{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Values["registered"] != false {
		t.Errorf("registered = %v, want false", snap.Values["registered"])
	}

	if _, err := coord.Register(ctx, protocol.Identity{}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	snap, err = p.Get(ctx, Request{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Values["registered"] != true || snap.Values["name"] != "Scout" {
		t.Errorf("values = %v", snap.Values)
	}
	if snap.Values["reputation"] != protocol.DefaultReputation {
		t.Errorf("reputation = %v, want %d", snap.Values["reputation"], protocol.DefaultReputation)
	}
	if !strings.Contains(snap.Text, "Capabilities: analysis.") {
		t.Errorf("Text = %q", snap.Text)
	}
}

func TestNetworkStatsProvider(t *testing.T) {
	ctx := context.Background()
	coord, sim := registeredCoordinator(t)
	p := &NetworkStatsProvider{Coord: coord}

	snap, err := p.Get(ctx, Request{})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if snap.Values["healthy"] != true {
		t.Errorf("healthy = %v, want true", snap.Values["healthy"])
	}
	if !strings.HasSuffix(snap.Text, "Gateway reachable.") {
		t.Errorf("Text = %q", snap.Text)
	}
	if _, ok := snap.Values["lastSync"]; ok {
		t.Error("lastSync should be absent before any sync")
	}

	sim.SetHealthy(false)
	snap, _ = p.Get(ctx, Request{})
	if !strings.HasSuffix(snap.Text, "Gateway unreachable.") {
		t.Errorf("Text = %q", snap.Text)
	}
}

func TestTextEvaluator(t *testing.T) {
	ctx := context.Background()
	coord, _ := testCoordinator(t, testSettings())
	r := Default(coord, func() time.Time { return fixedNow })

	e, err := r.Evaluator(evaluator.NameCollaboration)
	if err != nil {
		t.Fatalf("Evaluator: %v", err)
	}
	if e.Validate(ctx, Request{Text: "   "}) {
		t.Error("Validate should reject blank text")
	}
	if !e.Validate(ctx, Request{Text: "hi"}) {
		t.Error("Validate should accept text on an initialized coordinator")
	}

	text := "Let's collaborate on a joint project: can your agent handle a paid trade? I'm looking for agents with analysis capabilities."
	ev, err := e.Handle(ctx, Request{Text: text})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !ev.Timestamp.Equal(fixedNow) {
		t.Errorf("Timestamp = %v, want %v", ev.Timestamp, fixedNow)
	}
	want, _ := evaluator.Run(evaluator.NameCollaboration, text)
	if ev.Score != want.Normalized() {
		t.Errorf("Score = %v, want %v", ev.Score, want.Normalized())
	}
	if _, ok := ev.Evaluation.(evaluator.CollaborationEvaluation); !ok {
		t.Errorf("Evaluation = %T, want CollaborationEvaluation", ev.Evaluation)
	}
}

func TestTextEvaluator_Unknown(t *testing.T) {
	coord, _ := testCoordinator(t, testSettings())
	e := &TextEvaluator{Coord: coord, Evaluator: "sentiment"}
	if _, err := e.Handle(context.Background(), Request{Text: "hello"}); err == nil {
		t.Error("expected error for unknown evaluator")
	}
}
