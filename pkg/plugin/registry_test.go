package plugin

import (
	"context"
	"testing"
)

type stubAction struct {
	name string
}

func (s *stubAction) Name() string                                      { return s.name }
func (s *stubAction) Kind() Kind                                        { return KindAction }
func (s *stubAction) Description() string                               { return "stub" }
func (s *stubAction) Validate(context.Context, Request) bool            { return true }
func (s *stubAction) Handle(context.Context, Request) (Response, error) { return Response{Action: s.name}, nil }

// mislabeled claims to be a provider without implementing Get.
type mislabeled struct{}

func (mislabeled) Name() string        { return "broken" }
func (mislabeled) Kind() Kind          { return KindProvider }
func (mislabeled) Description() string { return "" }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAction{name: "ping"})

	c, err := r.Get(KindAction, "ping")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Name() != "ping" {
		t.Errorf("Name() = %q, want %q", c.Name(), "ping")
	}

	a, err := r.Action("ping")
	if err != nil {
		t.Fatalf("Action: %v", err)
	}
	resp, _ := a.Handle(context.Background(), Request{})
	if resp.Action != "ping" {
		t.Errorf("Action = %q, want %q", resp.Action, "ping")
	}
}

func TestRegistry_KindScopesNames(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAction{name: "ping"})

	if _, err := r.Get(KindProvider, "ping"); err == nil {
		t.Error("expected miss for provider with an action's name")
	}
	if _, err := r.Evaluator("ping"); err == nil {
		t.Error("expected miss for evaluator lookup")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(KindAction, "nope"); err == nil {
		t.Error("expected error for unknown component")
	}
}

func TestRegistry_TypeMismatch(t *testing.T) {
	r := NewRegistry()
	r.Register(mislabeled{})
	if _, err := r.Provider("broken"); err == nil {
		t.Error("expected error for component that does not implement Provider")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAction{name: "ping"})
	r.Unregister(KindAction, "ping")
	if _, err := r.Action("ping"); err == nil {
		t.Error("expected error after unregister")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubAction{name: "zeta"})
	r.Register(&stubAction{name: "alpha"})
	r.Register(mislabeled{})

	actions := r.List(KindAction)
	if len(actions) != 2 {
		t.Fatalf("List(action) len = %d, want 2", len(actions))
	}
	if actions[0].Name != "alpha" || actions[1].Name != "zeta" {
		t.Errorf("order = %s, %s; want alpha, zeta", actions[0].Name, actions[1].Name)
	}

	all := r.List("")
	if len(all) != 3 {
		t.Fatalf("List(all) len = %d, want 3", len(all))
	}
	if all[2].Kind != KindProvider {
		t.Errorf("last kind = %q, want %q", all[2].Kind, KindProvider)
	}
}

func TestDefault(t *testing.T) {
	coord, _ := testCoordinator(t, testSettings())
	r := Default(coord, nil)

	tests := []struct {
		kind Kind
		want []string
	}{
		{KindAction, []string{"create-channel", "create-escrow", "discover", "get-protocol-stats", "get-reputation", "join-channel", "register", "send-message"}},
		{KindProvider, []string{"agent-status", "network-stats"}},
		{KindEvaluator, []string{"collaboration", "quality", "reputation"}},
	}
	for _, tt := range tests {
		got := r.List(tt.kind)
		if len(got) != len(tt.want) {
			t.Errorf("List(%s) len = %d, want %d", tt.kind, len(got), len(tt.want))
			continue
		}
		for i, d := range got {
			if d.Name != tt.want[i] {
				t.Errorf("List(%s)[%d] = %q, want %q", tt.kind, i, d.Name, tt.want[i])
			}
		}
	}
	if n := len(r.List("")); n != 13 {
		t.Errorf("total components = %d, want 13", n)
	}
}
