package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/tidwall/gjson"
)

// =============================================================================
// Stack Item Parsers
// =============================================================================

// ParseArray extracts an array of StackItems from a parent StackItem.
func ParseArray(item StackItem) ([]StackItem, error) {
	if item.Type != "Array" && item.Type != "Struct" {
		return nil, fmt.Errorf("expected Array or Struct, got %s", item.Type)
	}

	var items []StackItem
	if err := json.Unmarshal(item.Value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return items, nil
}

// ParseInteger parses an Integer stack item into a big.Int.
func ParseInteger(item StackItem) (*big.Int, error) {
	if item.Type != "Integer" {
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}

// ParseInt64 parses an Integer stack item, rejecting values outside int64.
func ParseInt64(item StackItem) (int64, error) {
	n, err := ParseInteger(item)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer %s overflows int64", n.String())
	}
	return n.Int64(), nil
}

// ParseBoolean parses a Boolean stack item.
func ParseBoolean(item StackItem) (bool, error) {
	if item.Type != "Boolean" {
		return false, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value bool
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return false, err
	}
	return value, nil
}

// ParseString parses a ByteString/Buffer stack item into its decoded string.
func ParseString(item StackItem) (string, error) {
	if item.Type == "Null" {
		return "", nil
	}
	raw, err := ParseByteArray(item)
	if err != nil {
		return "", fmt.Errorf("unexpected type for string: %s", item.Type)
	}
	return string(raw), nil
}

// ParseByteArray parses a ByteString/Buffer stack item into raw bytes.
func ParseByteArray(item StackItem) ([]byte, error) {
	if item.Type == "Null" {
		return nil, nil
	}
	if item.Type != "ByteString" && item.Type != "Buffer" {
		return nil, fmt.Errorf("unexpected type: %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	return hex.DecodeString(value)
}

// ParseHash160 parses a ByteString stack item into a big-endian 0x hash.
func ParseHash160(item StackItem) (string, error) {
	raw, err := ParseByteArray(item)
	if err != nil || raw == nil {
		return "", fmt.Errorf("unexpected type: %s", item.Type)
	}
	reversed := make([]byte, len(raw))
	for i, b := range raw {
		reversed[len(raw)-1-i] = b
	}
	return "0x" + hex.EncodeToString(reversed), nil
}

// =============================================================================
// Invoke Result Helpers
// =============================================================================

// FirstStackItem extracts the VM state and first stack item from a raw
// invokefunction result without decoding the whole envelope.
func FirstStackItem(raw json.RawMessage) (StackItem, error) {
	state := gjson.GetBytes(raw, "state").String()
	if state != "HALT" {
		return StackItem{}, fmt.Errorf("execution faulted: %s", gjson.GetBytes(raw, "exception").String())
	}
	first := gjson.GetBytes(raw, "stack.0")
	if !first.Exists() {
		return StackItem{}, fmt.Errorf("empty result stack")
	}
	var item StackItem
	if err := json.Unmarshal([]byte(first.Raw), &item); err != nil {
		return StackItem{}, fmt.Errorf("unmarshal stack item: %w", err)
	}
	return item, nil
}

// =============================================================================
// Strategy Contract Types
// =============================================================================

// StrategyState is the on-chain view of a yield strategy deployment.
type StrategyState struct {
	TotalAssets *big.Int
	TotalShares *big.Int
	APYBps      int64
	Active      bool
}

// ParseStrategyState decodes the struct returned by a strategy contract's
// getState method: [totalAssets, totalShares, apyBps, active].
func ParseStrategyState(item StackItem) (*StrategyState, error) {
	items, err := ParseArray(item)
	if err != nil {
		return nil, err
	}
	if len(items) < 4 {
		return nil, fmt.Errorf("expected at least 4 items, got %d", len(items))
	}

	totalAssets, err := ParseInteger(items[0])
	if err != nil {
		return nil, fmt.Errorf("parse totalAssets: %w", err)
	}
	totalShares, err := ParseInteger(items[1])
	if err != nil {
		return nil, fmt.Errorf("parse totalShares: %w", err)
	}
	apy, err := ParseInt64(items[2])
	if err != nil {
		return nil, fmt.Errorf("parse apyBps: %w", err)
	}
	active, err := ParseBoolean(items[3])
	if err != nil {
		return nil, fmt.Errorf("parse active: %w", err)
	}

	return &StrategyState{
		TotalAssets: totalAssets,
		TotalShares: totalShares,
		APYBps:      apy,
		Active:      active,
	}, nil
}
