package report

import (
	"bytes"
	"encoding/json"
	"io"
)

// orderedObject preserves insertion order when marshaled as a JSON object.
type orderedObject struct {
	pairs []kv
}

type kv struct {
	key   string
	value any
}

func (o *orderedObject) set(key string, value any) {
	o.pairs = append(o.pairs, kv{key, value})
}

// MarshalJSON emits the pairs as a JSON object in insertion order.
func (o orderedObject) MarshalJSON() ([]byte, error) {
	if len(o.pairs) == 0 {
		return []byte(`{}`), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range o.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(p.key)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the report with columns keyed by header name in header
// order and groupings keyed by name in configuration order. Undefined
// statistics are explicit nulls.
func (r *Report) MarshalJSON() ([]byte, error) {
	var cols orderedObject
	for _, c := range r.columns {
		cols.set(c.Name, c)
	}
	var groups orderedObject
	for _, g := range r.groupings {
		groups.set(g.Name, g)
	}
	diags := r.diagnostics
	if diags.Issues == nil {
		diags.Issues = []Issue{}
	}

	var top orderedObject
	top.set("run_id", r.meta.RunID)
	top.set("job", r.meta.Job)
	top.set("source", r.meta.Source)
	top.set("columns", cols)
	top.set("groupings", groups)
	top.set("dataset", r.dataset)
	top.set("diagnostics", diags)
	return top.MarshalJSON()
}

// WriteJSON writes r to w as indented JSON followed by a newline.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
