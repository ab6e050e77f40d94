package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor encodes the sort key of the last item a listing returned. Clients
// round-trip it verbatim; the encoding is not part of the API contract.
type Cursor struct {
	// SubmittedAt is the stored timestamp string, empty for rows that have
	// no submission time yet.
	SubmittedAt string `json:"submitted_at"`
	ID          string `json:"id"`
}

// Encode serializes the cursor as base64(JSON).
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeCursor parses an encoded cursor. Any malformed input is rejected.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding")
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor payload")
	}
	if c.ID == "" {
		return Cursor{}, fmt.Errorf("invalid cursor payload")
	}
	return c, nil
}
