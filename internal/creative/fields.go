package creative

import (
	"encoding/json"
	"time"
)

// Opt is a field that is either omitted, explicitly null, or set.
type Opt[T any] struct {
	Value T
	Set   bool
	Null  bool
}

func Some[T any](v T) Opt[T] { return Opt[T]{Value: v, Set: true} }

func Null[T any]() Opt[T] { return Opt[T]{Set: true, Null: true} }

// StatusFields is the sparse overlay a status write carries. Only fields with
// Set reach the stored entry; Null writes an explicit null.
type StatusFields struct {
	ErrorMessage    Opt[string]
	RequestPayload  Opt[json.RawMessage]
	ResponsePayload Opt[json.RawMessage]
	ResponseStatus  Opt[int]
	ResponseHeaders Opt[map[string]string]
}

// Document builds the stored entry for one asset. The entry replaces the
// previous one wholesale, so fields not present here are gone afterwards.
func (f StatusFields) Document(state string, integ Integration, updatedAt time.Time) map[string]any {
	doc := map[string]any{
		"state":           state,
		"integrationId":   integ.ID,
		"integrationName": integ.Name,
		"updatedAt":       updatedAt.UTC().Format(time.RFC3339Nano),
	}
	put(doc, "errorMessage", f.ErrorMessage)
	putRaw(doc, "requestPayload", f.RequestPayload)
	putRaw(doc, "responsePayload", f.ResponsePayload)
	put(doc, "responseStatus", f.ResponseStatus)
	put(doc, "responseHeaders", f.ResponseHeaders)
	return doc
}

func put[T any](doc map[string]any, key string, o Opt[T]) {
	switch {
	case !o.Set:
	case o.Null:
		doc[key] = nil
	default:
		doc[key] = o.Value
	}
}

func putRaw(doc map[string]any, key string, o Opt[json.RawMessage]) {
	if !o.Set {
		return
	}
	if o.Null || len(o.Value) == 0 {
		doc[key] = nil
		return
	}
	doc[key] = o.Value
}

// Entry converts a stored document back into a StatusEntry.
func Entry(doc map[string]any) (StatusEntry, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return StatusEntry{}, err
	}
	var e StatusEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return StatusEntry{}, err
	}
	return e, nil
}
