package protocol

import (
	"time"

	"github.com/igorsilveira/clawnet/pkg/store"
)

// State is the single mutable root of the protocol. Only a Coordinator
// mutates it; callers hand it over at construction and keep no store handles.
type State struct {
	self       *Agent
	registered bool
	lastSync   time.Time

	agents   store.KV[Agent]
	channels store.KV[Channel]
	messages store.KV[Message]
	escrows  store.KV[Escrow]
}

// NewState returns a State backed by in-memory stores.
func NewState() *State {
	return &State{
		agents:   store.NewMemory[Agent](),
		channels: store.NewMemory[Channel](),
		messages: store.NewMemory[Message](),
		escrows:  store.NewMemory[Escrow](),
	}
}

// NewPersistentState returns a State whose directory, channels, message log
// and escrows live in s. The local identity is not persisted.
func NewPersistentState(s *store.Store) *State {
	return &State{
		agents:   store.NewTable[Agent](s, "agents"),
		channels: store.NewTable[Channel](s, "channels"),
		messages: store.NewTable[Message](s, "messages"),
		escrows:  store.NewTable[Escrow](s, "escrows"),
	}
}

// NewStateWithStores wires arbitrary KV backends.
func NewStateWithStores(agents store.KV[Agent], channels store.KV[Channel], messages store.KV[Message], escrows store.KV[Escrow]) *State {
	return &State{agents: agents, channels: channels, messages: messages, escrows: escrows}
}

func cloneAgent(a Agent) Agent {
	a.Capabilities = cloneStrings(a.Capabilities)
	return a
}

func cloneChannel(ch Channel) Channel {
	ch.Participants = cloneStrings(ch.Participants)
	ch.Invited = cloneStrings(ch.Invited)
	return ch
}

func cloneEscrow(e Escrow) Escrow {
	e.Deliverables = cloneStrings(e.Deliverables)
	return e
}
