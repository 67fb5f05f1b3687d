package postgresengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

// Values without a native JSON form are stored as single-key wrapper objects.
// Times use a fixed-width UTC layout so that jsonb ordering matches time ordering.
const (
	keyDate       = "$date"
	keyObjectID   = "$oid"
	dateLayout    = "2006-01-02T15:04:05.000000000Z"
	castJsonb     = "?::jsonb"
	castTextArray = "?::text[]"
)

var jsonCodec = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// toJSONValue converts a record value into its stored JSON form.
func toJSONValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return map[string]any{keyDate: v.UTC().Format(dateLayout)}
	case *time.Time:
		if v == nil {
			return nil
		}
		return toJSONValue(*v)
	case primitive.DateTime:
		return toJSONValue(v.Time())
	case primitive.ObjectID:
		return map[string]any{keyObjectID: v.Hex()}
	case uuid.UUID:
		return v.String()
	case []byte:
		return string(v)
	}

	if m, ok := recordops.AsMap(value); ok {
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = toJSONValue(item)
		}
		return out
	}

	if s, ok := recordops.AsSlice(value); ok {
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = toJSONValue(item)
		}
		return out
	}

	return value
}

// fromJSONValue converts a decoded JSON value back into record values: integral numbers
// become int64, other numbers float64, and wrapper objects times or ObjectIDs.
func fromJSONValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(string(v), 64)
		return f

	case map[string]any:
		if len(v) == 1 {
			if s, ok := v[keyDate].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t
				}
			}
			if s, ok := v[keyObjectID].(string); ok {
				if oid, err := primitive.ObjectIDFromHex(s); err == nil {
					return oid
				}
			}
		}

		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = fromJSONValue(item)
		}
		return out

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromJSONValue(item)
		}
		return out
	}

	return value
}

// encodeJSON marshals one value in its stored form.
func encodeJSON(value any) (string, error) {
	data, err := jsonCodec.Marshal(toJSONValue(value))
	if err != nil {
		return "", errors.Join(ErrEncodingFailed, err)
	}

	return string(data), nil
}

// encodeDocument marshals a record without its identity, which lives in its own column.
func encodeDocument(record odm.Record) (string, error) {
	body := make(map[string]any, len(record))
	for k, v := range record {
		if k != odm.IDField {
			body[k] = v
		}
	}

	return encodeJSON(body)
}

// decodeDocument rebuilds a record from the id column and the jsonb document.
func decodeDocument(id string, data []byte) (odm.Record, error) {
	var raw map[string]any
	if err := jsonCodec.Unmarshal(data, &raw); err != nil {
		return nil, errors.Join(ErrDecodingFailed, err)
	}

	record := make(odm.Record, len(raw)+1)
	for k, v := range raw {
		record[k] = fromJSONValue(v)
	}
	record[odm.IDField] = id

	return record, nil
}

// idText renders an identity for the text id column.
func idText(id any) (string, error) {
	switch v := id.(type) {
	case string:
		return v, nil
	case primitive.ObjectID:
		return v.Hex(), nil
	case uuid.UUID:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	if i, ok := recordops.ToInt64(id); ok {
		return strconv.FormatInt(i, 10), nil
	}

	return "", fmt.Errorf("%w: %T", ErrUnsupportedIdentity, id)
}
