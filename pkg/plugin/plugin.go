// Package plugin exposes the coordinator to a host agent runtime as a closed
// set of actions, providers and evaluators looked up through a Registry.
package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindAction    Kind = "action"
	KindProvider  Kind = "provider"
	KindEvaluator Kind = "evaluator"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindAction, KindProvider, KindEvaluator:
		return k, nil
	}
	return "", fmt.Errorf("plugin: unknown kind %q", s)
}

// Request is one conversation turn. Params carries structured arguments;
// when absent, components extract what they need from Text.
type Request struct {
	Text   string          `json:"text"`
	Params json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	Text    string `json:"text"`
	Action  string `json:"action"`
	Content any    `json:"content,omitempty"`
}

// Snapshot is a read-only rendering of coordinator state.
type Snapshot struct {
	Text   string         `json:"text"`
	Values map[string]any `json:"values"`
}

type Evaluation struct {
	Score      float64   `json:"score"`
	Evaluation any       `json:"evaluation"`
	Timestamp  time.Time `json:"timestamp"`
}

type Component interface {
	Name() string
	Kind() Kind
	Description() string
}

type Action interface {
	Component
	Validate(ctx context.Context, req Request) bool
	Handle(ctx context.Context, req Request) (Response, error)
}

// Provider implementations must never mutate coordinator state.
type Provider interface {
	Component
	Get(ctx context.Context, req Request) (Snapshot, error)
}

type Evaluator interface {
	Component
	Validate(ctx context.Context, req Request) bool
	Handle(ctx context.Context, req Request) (Evaluation, error)
}

// Descriptor is the serializable view of a component.
type Descriptor struct {
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

func Describe(c Component) Descriptor {
	return Descriptor{Name: c.Name(), Kind: c.Kind(), Description: c.Description()}
}

func parseParams[T any](req Request, name string) (T, error) {
	var params T
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return params, fmt.Errorf("%s: invalid params: %w", name, err)
	}
	return params, nil
}
