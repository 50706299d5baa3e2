// Package chain implements protocol.Gateway: a JSON-RPC client for a remote
// chain gateway, an in-process Simulator, and a Handler that serves any
// Gateway over the same wire format.
package chain

import (
	"encoding/json"
	"fmt"
)

const (
	MethodRegister      = "agent.register"
	MethodListAgents    = "agent.list"
	MethodSendMessage   = "message.send"
	MethodCreateChannel = "channel.create"
	MethodJoinChannel   = "channel.join"
	MethodCreateEscrow  = "escrow.create"
	MethodNetworkStats  = "network.stats"
	MethodBalance       = "wallet.balance"
	MethodHealth        = "health"
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object. It is returned as-is by RPCClient so
// callers can inspect the code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

const (
	ErrCodeParse      = -32700
	ErrCodeInvalidReq = -32600
	ErrCodeNotFound   = -32601
	ErrCodeParams     = -32602
	ErrCodeInternal   = -32603
	ErrCodeRejected   = -32001
)

func newResult(id any, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return newError(id, ErrCodeInternal, err.Error())
	}
	return Response{JSONRPC: "2.0", ID: id, Result: raw}
}

func newError(id any, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}

type messageParams struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Type        string `json:"type"`
}

type channelParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
}

type joinParams struct {
	ChannelID string `json:"channelId"`
}

type joinResult struct {
	Joined bool `json:"joined"`
}

type balanceResult struct {
	Balance int64 `json:"balance"`
}

type healthResult struct {
	OK bool `json:"ok"`
}
