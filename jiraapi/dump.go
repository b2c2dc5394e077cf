package jiraapi

import (
	"encoding/json"
	"io"
)

// PrintJSON writes v as indented JSON. Object keys are sorted, which makes
// two dumps of the same data diffable.
func PrintJSON(w io.Writer, v any) error {
	// Round-trip through any so that RawIssue documents get their keys
	// sorted too.
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(generic)
}
