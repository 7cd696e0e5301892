package sqlutil

import (
	"encoding/json"

	"github.com/sqlc-dev/pqtype"
)

// Helper functions for converting between Go types and nullable column types

// ToNullRawMessage converts a JSON document to pqtype.NullRawMessage. Empty input is NULL.
func ToNullRawMessage(val []byte) pqtype.NullRawMessage {
	return pqtype.NullRawMessage{RawMessage: json.RawMessage(val), Valid: len(val) > 0}
}

// FromNullRawMessage converts pqtype.NullRawMessage to a JSON document with a default
// for NULL columns.
func FromNullRawMessage(val pqtype.NullRawMessage, defaultVal []byte) []byte {
	if !val.Valid {
		return defaultVal
	}
	return []byte(val.RawMessage)
}
