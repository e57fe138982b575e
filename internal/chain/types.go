package chain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// JSON-RPC Types
// =============================================================================

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// isNotFoundError reports whether an RPC error indicates a transaction that
// has not been persisted yet.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown transaction") || strings.Contains(msg, "not found")
}

// =============================================================================
// Invocation Types
// =============================================================================

// ContractParam is a typed parameter for a contract invocation.
type ContractParam struct {
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

// IntParam builds an Integer contract parameter.
func IntParam(v int64) ContractParam {
	return ContractParam{Type: "Integer", Value: fmt.Sprintf("%d", v)}
}

// StringParam builds a String contract parameter.
func StringParam(v string) ContractParam {
	return ContractParam{Type: "String", Value: v}
}

// Hash160Param builds a Hash160 contract parameter.
func Hash160Param(v string) ContractParam {
	return ContractParam{Type: "Hash160", Value: v}
}

// Signer scopes a transaction witness.
type Signer struct {
	Account string `json:"account"`
	Scopes  string `json:"scopes"`
}

// StackItem is a Neo VM stack item. Value stays raw until a parser claims it.
type StackItem struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// InvokeResult is the result of invokefunction / invokescript.
type InvokeResult struct {
	Script      string      `json:"script"`
	State       string      `json:"state"`
	GasConsumed string      `json:"gasconsumed"`
	Exception   string      `json:"exception,omitempty"`
	Stack       []StackItem `json:"stack"`
	Tx          string      `json:"tx,omitempty"`
}

// ApplicationLog is a transaction execution record.
type ApplicationLog struct {
	TxID       string      `json:"txid"`
	Executions []Execution `json:"executions"`
}

// Execution is a single VM execution within an application log.
type Execution struct {
	Trigger       string            `json:"trigger"`
	VMState       string            `json:"vmstate"`
	GasConsumed   string            `json:"gasconsumed"`
	Exception     string            `json:"exception,omitempty"`
	Stack         []StackItem       `json:"stack"`
	Notifications []json.RawMessage `json:"notifications"`
}

// TxResult summarizes a broadcast transaction.
type TxResult struct {
	TxHash  string
	VMState string
	AppLog  *ApplicationLog
}
