package blobcache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Serializer converts a Go value to and from the bytes stored in
// CacheElement.Value. Pluggable per spec.md §9's "Design Notes" pluggable
// sinks idea; Cache defaults to JSONSerializer.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, out any) error
}

// JSONSerializer encodes values with encoding/json. The default: human
// readable, no registration step, works with any JSON-marshalable value.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("blobcache: json marshal: %w", err)
	}
	return b, nil
}

func (JSONSerializer) Unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("blobcache: json unmarshal: %w", err)
	}
	return nil
}

// GobSerializer encodes values with encoding/gob, for callers that want a
// compact binary wire format rather than JSON's textual one. Marshal
// encodes the concrete value given; Unmarshal decodes into whatever
// concrete pointer the caller passes as out, so no gob.Register step is
// needed for the common case of a fixed, known struct per TypeName.
type GobSerializer struct{}

func (GobSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("blobcache: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobSerializer) Unmarshal(data []byte, out any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out); err != nil {
		return fmt.Errorf("blobcache: gob unmarshal: %w", err)
	}
	return nil
}
