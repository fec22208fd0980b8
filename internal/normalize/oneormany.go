package normalize

import (
	"bytes"
	"encoding/json"
)

// oneOrMany accepts a JSON field that may be either a bare value or an
// array of values, and always exposes it as a slice. Feeds in the
// NextBus family serialize singletons as bare objects at several nesting
// levels, so every one-or-many field is coerced here immediately after
// parse, before any extraction logic runs.
type oneOrMany[T any] struct {
	Items []T
}

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		o.Items = nil
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &o.Items)
	}
	var single T
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	o.Items = []T{single}
	return nil
}
