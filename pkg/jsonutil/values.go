package jsonutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// NormalizeValue converts a driver value into something that serializes to
// readable JSON. UUIDs arrive from pgx as [16]byte and MySQL hands back most
// columns as []byte when scanned into any.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return base64.StdEncoding.EncodeToString(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *big.Int:
		return val.String()
	case json.Marshaler:
		// Types such as pgtype.Numeric know how to render themselves. Numbers
		// stay json.Number so wide decimals keep every digit.
		if data, err := val.MarshalJSON(); err == nil {
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			var out any
			if dec.Decode(&out) == nil {
				return out
			}
		}
		return fmt.Sprint(val)
	default:
		return v
	}
}
