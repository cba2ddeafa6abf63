package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeCursor serializes a resume position into an opaque pagination token.
// The token is base64 over a JSON object; callers must treat it as
// unparseable and pass it back unmodified. Ordering is a property of the
// underlying index, not of the token.
func EncodeCursor(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("storage: EncodeCursor: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeCursor decodes a token produced by EncodeCursor into v. Tokens that
// do not base64-decode to a JSON object fail with ErrMalformedCursor.
func DecodeCursor(token string, v any) error {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: not a JSON object", ErrMalformedCursor)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCursor, err)
	}
	return nil
}
