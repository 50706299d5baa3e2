package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/igorsilveira/clawnet/pkg/audit"
	"github.com/igorsilveira/clawnet/pkg/plugin"
	"github.com/igorsilveira/clawnet/pkg/protocol"
)

const maxBody = 1 << 20

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coord.GetProtocolStats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	f, err := agentFilter(r.URL.Query())
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	agents, err := s.coord.DiscoverAgents(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if agents == nil {
		agents = []protocol.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func agentFilter(q url.Values) (protocol.AgentFilter, error) {
	f := protocol.AgentFilter{
		Capabilities: splitList(q["capability"]),
		Framework:    q.Get("framework"),
		SearchTerm:   q.Get("search"),
		Status:       protocol.AgentStatus(q.Get("status")),
	}
	var err error
	if f.MinReputation, err = intParam(q, "min_reputation"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q, "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"agentId":    id,
		"reputation": s.coord.GetAgentReputation(r.Context(), id),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := protocol.MessageFilter{
		SenderID:    q.Get("sender"),
		RecipientID: q.Get("recipient"),
		Type:        protocol.MessageType(q.Get("type")),
		Status:      protocol.MessageStatus(q.Get("status")),
		UnreadOnly:  q.Get("unread") == "true",
	}
	var err error
	if f.Since, err = timeParam(q, "since"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}

	msgs, err := s.coord.GetMessages(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []protocol.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.coord.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleParticipants(w http.ResponseWriter, r *http.Request) {
	agents, err := s.coord.GetChannelParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if agents == nil {
		agents = []protocol.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleEscrows(w http.ResponseWriter, r *http.Request) {
	list, err := s.coord.ListEscrows(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []protocol.Escrow{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleEscrow(w http.ResponseWriter, r *http.Request) {
	e, err := s.coord.GetEscrow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type fundRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleEscrowTransition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	var (
		e   protocol.Escrow
		err error
	)
	switch chi.URLParam(r, "transition") {
	case "fund":
		var req fundRequest
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
		e, err = s.coord.FundEscrow(ctx, id, req.Amount)
	case "complete":
		e, err = s.coord.CompleteEscrow(ctx, id)
	case "dispute":
		e, err = s.coord.DisputeEscrow(ctx, id)
	case "refund":
		e, err = s.coord.RefundEscrow(ctx, id)
	default:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown escrow transition", Kind: "NotFound"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	var kind plugin.Kind
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := plugin.ParseKind(k)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		kind = parsed
	}
	writeJSON(w, http.StatusOK, s.registry.List(kind))
}

// handleAction runs Validate before Handle, as a host runtime would. An
// action that does not apply to the request answers 422.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Action(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "NotFound"})
		return
	}
	var req plugin.Request
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if !a.Validate(r.Context(), req) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: a.Name() + " does not apply to this request"})
		return
	}
	resp, err := a.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Provider(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "NotFound"})
		return
	}
	snap, err := p.Get(r.Context(), plugin.Request{Text: r.URL.Query().Get("text")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvaluator(w http.ResponseWriter, r *http.Request) {
	ev, err := s.registry.Evaluator(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "NotFound"})
		return
	}
	var req plugin.Request
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if !ev.Validate(r.Context(), req) {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: ev.Name() + " does not apply to this request"})
		return
	}
	result, err := ev.Handle(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Jobs())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "audit log disabled", Kind: "NotConfigured"})
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		EventType: q.Get("event"),
		SubjectID: q.Get("subject"),
		AgentID:   q.Get("agent"),
	}
	var err error
	if f.Since, err = timeParam(q, "since"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Until, err = timeParam(q, "until"); err != nil {
		badRequest(w, err.Error())
		return
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		badRequest(w, err.Error())
		return
	}

	entries, err := s.audit.Query(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// splitList flattens repeated and comma separated query values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

func timeParam(q url.Values, name string) (time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New(name + " must be an RFC 3339 timestamp")
	}
	return t, nil
}
