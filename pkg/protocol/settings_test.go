package protocol

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igorsilveira/clawnet/pkg/store"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"websocket url", func(s *Settings) { s.RPCURL = "wss://rpc.example.com" }, ""},
		{"empty url", func(s *Settings) { s.RPCURL = "" }, "rpc url is empty"},
		{"bad scheme", func(s *Settings) { s.RPCURL = "ftp://rpc.example.com" }, "not supported"},
		{"no host", func(s *Settings) { s.RPCURL = "https://" }, "malformed"},
		{"empty program", func(s *Settings) { s.ProgramID = "" }, "program id is empty"},
		{"non base58 program", func(s *Settings) { s.ProgramID = "0OIl" + strings.Repeat("1", 30) }, "not a base58"},
		{"short program", func(s *Settings) { s.ProgramID = "abc" }, "not a base58"},
		{"empty wallet", func(s *Settings) { s.WalletKey = "  " }, "wallet credential"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrNotConfigured) {
				t.Fatalf("err = %v, want ErrNotConfigured", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestPersistentStateSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "clawnet.db")

	s, err := store.New(dsn)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	env := registeredEnv(t, func(c *Config) { c.State = NewPersistentState(s) })
	ch, err := env.coord.CreateChannel(ctx, "general", "", nil)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	for _, body := range []string{"one", "two"} {
		if _, err := env.coord.SendMessage(ctx, "agent-a", body, nil); err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := store.New(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	env2 := newTestEnv(t, func(c *Config) { c.State = NewPersistentState(s2) })

	got, err := env2.coord.GetChannel(ctx, ch.ID)
	if err != nil {
		t.Fatalf("GetChannel after reopen: %v", err)
	}
	if got.Owner != "agent-self" {
		t.Errorf("Owner = %q, want agent-self", got.Owner)
	}
	msgs, err := env2.coord.GetMessages(ctx, MessageFilter{})
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Content != "two" {
		t.Errorf("messages = %+v, want two entries newest first", msgs)
	}
	if env2.coord.Registered() {
		t.Error("identity should not persist across reopen")
	}
}
