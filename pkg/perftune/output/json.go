package output

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter writes one indented JSON document.
type JSONFormatter struct{}

func (JSONFormatter) Format(w *bytes.Buffer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// JSONLFormatter writes one compact JSON object per line, suited to
// streaming monitor output into jq.
type JSONLFormatter struct{}

func (JSONLFormatter) Format(w *bytes.Buffer, r *Report) error {
	return json.NewEncoder(w).Encode(r)
}

func init() {
	Register("json", func() Formatter { return JSONFormatter{} })
	Register("jsonl", func() Formatter { return JSONLFormatter{} })
}
