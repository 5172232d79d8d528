package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Hash field precedence per propose endpoint. The relay's propose responses
// are not contractually fixed: they may be a bare text body, a JSON string,
// or a JSON object using one of several field names. The first present
// non-empty field in the documented order wins.
var (
	GuardHashPrecedence      = []string{"safeTxHash", "txHash", "hash"}
	WithdrawalHashPrecedence = []string{"safeHash", "safeTxHash", "txHash", "hash"}
)

// ErrNoHashField 表示 JSON 响应中不包含任何候选哈希字段。
var ErrNoHashField = errors.New("propose response carries no correlation hash field")

// ParseCorrelationHash extracts the correlation hash from a propose response
// body. A JSON object is searched in precedence order; a JSON string is the
// hash itself; anything that does not parse as JSON is taken verbatim. The
// returned hash is not validated here; callers decide what shapes they
// accept.
func ParseCorrelationHash(body []byte, precedence []string) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", ErrNoHashField
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &object); err == nil {
		for _, field := range precedence {
			raw, ok := object[field]
			if !ok {
				continue
			}
			var value string
			if err := json.Unmarshal(raw, &value); err != nil {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				return value, nil
			}
		}
		return "", ErrNoHashField
	}

	var plain string
	if err := json.Unmarshal(trimmed, &plain); err == nil {
		if plain = strings.TrimSpace(plain); plain != "" {
			return plain, nil
		}
		return "", ErrNoHashField
	}

	return string(trimmed), nil
}
