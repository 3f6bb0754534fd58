// Package group computes grouped aggregates keyed by composite column
// values. Each grouping owns a hash table from encoded key tuple to a group
// accumulator (row count plus one numeric accumulator per target column).
// Keys are hashed with xxh3; a bucket keeps its colliding entries and
// compares the full encoded key before reuse.
package group

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/zeebo/xxh3"

	"statscan/internal/schema"
	"statscan/internal/stats"
)

// MissingLabel renders a Missing key part in labels.
const MissingLabel = "(missing)"

// Spec names a grouping: the key columns (in order) and the numeric target
// columns aggregated per group.
type Spec struct {
	Name    string   `json:"name"`
	Keys    []string `json:"keys"`
	Targets []string `json:"targets,omitempty"`
}

// Options carries the soft capacity limits.
type Options struct {
	// MaxGroups flags the grouping Degraded once exceeded; zero disables.
	MaxGroups int
	// MaxMedianBuffer is passed to every target accumulator.
	MaxMedianBuffer int
}

// KeyPart is one element of a group key: a text value or the Missing
// placeholder.
type KeyPart struct {
	Text    string
	Missing bool
}

// MarshalJSON encodes a Missing part as null.
func (p KeyPart) MarshalJSON() ([]byte, error) {
	if p.Missing {
		return []byte("null"), nil
	}
	return json.Marshal(p.Text)
}

// Key is an ordered key tuple.
type Key []KeyPart

// Label joins the parts with "|" for logs and sinks.
func (k Key) Label() string {
	parts := make([]string, len(k))
	for i, p := range k {
		if p.Missing {
			parts[i] = MissingLabel
		} else {
			parts[i] = p.Text
		}
	}
	return strings.Join(parts, "|")
}

// AllMissing reports whether every part is Missing (the missing-key group).
func (k Key) AllMissing() bool {
	for _, p := range k {
		if !p.Missing {
			return false
		}
	}
	return true
}

// CompareKeys orders keys part by part: text ascending, Missing after text.
func CompareKeys(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		pa, pb := a[i], b[i]
		switch {
		case pa.Missing && pb.Missing:
			continue
		case pa.Missing:
			return 1
		case pb.Missing:
			return -1
		}
		if c := cmp.Compare(pa.Text, pb.Text); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// Plan is a Spec resolved against a schema. It is immutable and shared by
// every worker's Aggregator.
type Plan struct {
	Spec    Spec
	keys    []int
	targets []int
	tnames  []string
	skipped []string
	opt     Options
}

// NewPlan resolves spec against sch. Unknown key or target columns are an
// error. Targets that are not Numeric are left out and reported by Skipped.
func NewPlan(spec Spec, sch *schema.Schema, opt Options) (*Plan, error) {
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("grouping %q: no key columns", spec.Name)
	}
	p := &Plan{Spec: spec, opt: opt}
	for _, k := range spec.Keys {
		i := sch.Lookup(k)
		if i < 0 {
			return nil, fmt.Errorf("grouping %q: unknown key column %q", spec.Name, k)
		}
		p.keys = append(p.keys, i)
	}
	for _, t := range spec.Targets {
		i := sch.Lookup(t)
		if i < 0 {
			return nil, fmt.Errorf("grouping %q: unknown target column %q", spec.Name, t)
		}
		if sch.Columns[i].Kind != schema.Numeric {
			p.skipped = append(p.skipped, t)
			continue
		}
		p.targets = append(p.targets, i)
		p.tnames = append(p.tnames, t)
	}
	return p, nil
}

// Skipped lists the target columns left out because they are not Numeric.
func (p *Plan) Skipped() []string { return p.skipped }

// Targets lists the numeric target columns aggregated per group.
func (p *Plan) Targets() []string { return p.tnames }

// NewAggregator returns an empty table for this plan.
func (p *Plan) NewAggregator() *Aggregator {
	return &Aggregator{plan: p, buckets: make(map[uint64][]*entry)}
}

type entry struct {
	hash    uint64
	enc     string
	key     Key
	count   int64
	targets []*stats.Numeric
}

// Aggregator is one hash table of groups. It is owned by a single worker.
type Aggregator struct {
	plan     *Plan
	buckets  map[uint64][]*entry
	entries  []*entry
	rows     int64
	degraded bool
	scratch  []byte
}

// Add assigns row to its group. Every row lands in exactly one group; a
// row whose key columns are all Missing lands in the missing-key group.
func (a *Aggregator) Add(row schema.Row) {
	a.rows++
	buf := a.scratch[:0]
	for _, i := range a.plan.keys {
		buf = appendPart(buf, row[i])
	}
	a.scratch = buf

	h := xxh3.Hash(buf)
	e := a.lookup(h, buf)
	if e == nil {
		e = a.insert(h, buf, row)
	}
	e.count++
	for j, i := range a.plan.targets {
		if v := row[i]; v.Tag == schema.Number {
			e.targets[j].Add(v.Num)
		} else {
			e.targets[j].AddMissing()
		}
	}
}

// appendPart encodes one key part: 0x00 for Missing, otherwise 0x01, the
// uvarint length and the raw field text. Number parts use their text, not
// the parsed float.
func appendPart(buf []byte, v schema.Value) []byte {
	if v.Tag == schema.Missing {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = binary.AppendUvarint(buf, uint64(len(v.Str)))
	return append(buf, v.Str...)
}

func (a *Aggregator) lookup(h uint64, enc []byte) *entry {
	for _, e := range a.buckets[h] {
		if e.enc == string(enc) {
			return e
		}
	}
	return nil
}

func (a *Aggregator) insert(h uint64, enc []byte, row schema.Row) *entry {
	key := make(Key, len(a.plan.keys))
	for j, i := range a.plan.keys {
		if v := row[i]; v.Tag == schema.Missing {
			key[j] = KeyPart{Missing: true}
		} else {
			key[j] = KeyPart{Text: v.Str}
		}
	}
	e := &entry{hash: h, enc: string(enc), key: key, targets: a.newTargets()}
	a.buckets[h] = append(a.buckets[h], e)
	a.entries = append(a.entries, e)
	a.checkCapacity()
	return e
}

func (a *Aggregator) newTargets() []*stats.Numeric {
	t := make([]*stats.Numeric, len(a.plan.targets))
	for j := range t {
		t[j] = stats.NewNumeric(a.plan.opt.MaxMedianBuffer)
	}
	return t
}

func (a *Aggregator) checkCapacity() {
	if m := a.plan.opt.MaxGroups; m > 0 && len(a.entries) > m {
		a.degraded = true
	}
}

// Merge folds b into a: matching keys sum counts and merge target
// accumulators, new keys are adopted. b must not be used afterwards.
func (a *Aggregator) Merge(b *Aggregator) {
	if b == nil {
		return
	}
	a.rows += b.rows
	a.degraded = a.degraded || b.degraded
	for _, be := range b.entries {
		var ae *entry
		for _, e := range a.buckets[be.hash] {
			if e.enc == be.enc {
				ae = e
				break
			}
		}
		if ae == nil {
			a.buckets[be.hash] = append(a.buckets[be.hash], be)
			a.entries = append(a.entries, be)
			continue
		}
		ae.count += be.count
		for j := range ae.targets {
			ae.targets[j].Merge(be.targets[j])
		}
	}
	a.checkCapacity()
}

// Rows returns the number of rows assigned so far.
func (a *Aggregator) Rows() int64 { return a.rows }

// Len returns the number of distinct groups.
func (a *Aggregator) Len() int { return len(a.entries) }

// Degraded reports whether MaxGroups was exceeded.
func (a *Aggregator) Degraded() bool { return a.degraded }

// TargetStats is a finalized target column for one group.
type TargetStats struct {
	Column string             `json:"column"`
	Stats  stats.NumericStats `json:"stats"`
}

// Group is one finalized group.
type Group struct {
	Key        Key           `json:"key"`
	Label      string        `json:"label"`
	Count      int64         `json:"count"`
	MissingKey bool          `json:"missing_key,omitempty"`
	Targets    []TargetStats `json:"targets,omitempty"`
}

// Summary describes the size distribution of a grouping.
type Summary struct {
	Groups  int      `json:"total_groups"`
	MinSize int64    `json:"min_group_size"`
	MaxSize int64    `json:"max_group_size"`
	AvgSize *float64 `json:"avg_group_size"`
}

// Result is a finalized grouping.
type Result struct {
	Name     string   `json:"name"`
	Keys     []string `json:"keys"`
	Rows     int64    `json:"rows"`
	Summary  Summary  `json:"summary"`
	Groups   []Group  `json:"groups"`
	Degraded bool     `json:"degraded,omitempty"`
}

// Finalize orders the groups by count descending then key ascending and
// finalizes every target accumulator.
func (a *Aggregator) Finalize(decimals int) Result {
	res := Result{
		Name:     a.plan.Spec.Name,
		Keys:     append([]string(nil), a.plan.Spec.Keys...),
		Rows:     a.rows,
		Degraded: a.degraded,
		Groups:   make([]Group, 0, len(a.entries)),
	}
	ents := slices.Clone(a.entries)
	slices.SortFunc(ents, func(x, y *entry) int {
		if c := cmp.Compare(y.count, x.count); c != 0 {
			return c
		}
		return CompareKeys(x.key, y.key)
	})
	for _, e := range ents {
		g := Group{
			Key:        e.key,
			Label:      e.key.Label(),
			Count:      e.count,
			MissingKey: e.key.AllMissing(),
		}
		for j, t := range e.targets {
			g.Targets = append(g.Targets, TargetStats{
				Column: a.plan.tnames[j],
				Stats:  t.Finalize(decimals),
			})
		}
		res.Groups = append(res.Groups, g)
	}
	res.Summary = summarize(res.Groups, a.rows)
	return res
}

func summarize(groups []Group, rows int64) Summary {
	s := Summary{Groups: len(groups)}
	if len(groups) == 0 {
		return s
	}
	s.MinSize, s.MaxSize = groups[0].Count, groups[0].Count
	for _, g := range groups[1:] {
		s.MinSize = min(s.MinSize, g.Count)
		s.MaxSize = max(s.MaxSize, g.Count)
	}
	avg := float64(rows) / float64(len(groups))
	s.AvgSize = &avg
	return s
}
