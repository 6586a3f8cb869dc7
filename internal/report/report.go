// Package report implements the aggregation engine behind the dashboard
// and the reporting CLI: filtering, grouped counts, top-N rankings and
// time-bucketed series over observation snapshots.
package report

import (
	"sort"
	"time"

	"vigia/internal/dateutil"
	"vigia/internal/domain"
	"vigia/internal/labels"
)

// StatusAll matches both pendiente and cerrada records.
const StatusAll = "all"

// Filter narrows an observation snapshot. Zero-value fields do not
// constrain. From and To are YYYY-MM-DD; To is end-of-day inclusive.
type Filter struct {
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
	Areas      []string `json:"areas,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Status     string   `json:"status,omitempty"`
}

// Apply returns the records passing the filter. A record whose creation
// timestamp does not parse is excluded no matter what: it cannot be
// placed in any date window, so it fails closed.
func (f Filter) Apply(items []domain.Observation) []domain.Observation {
	var from, to time.Time
	if f.From != "" {
		if t, ok := dateutil.ParseDueDate(f.From); ok {
			from = dateutil.Truncate(t)
		}
	}
	if f.To != "" {
		if t, ok := dateutil.ParseDueDate(f.To); ok {
			to = dateutil.Truncate(t).AddDate(0, 0, 1)
		}
	}
	areaKeys := keySet(f.Areas)
	catSet := make(map[string]bool, len(f.Categories))
	for _, c := range f.Categories {
		catSet[c] = true
	}

	out := make([]domain.Observation, 0, len(items))
	for _, o := range items {
		created, err := time.Parse(time.RFC3339, o.CreadoEn)
		if err != nil {
			continue
		}
		created = created.Local()
		if !from.IsZero() && created.Before(from) {
			continue
		}
		if !to.IsZero() && !created.Before(to) {
			continue
		}
		if len(areaKeys) > 0 && !areaKeys[labels.NormalizeKey(o.Area)] {
			continue
		}
		if len(catSet) > 0 && !catSet[o.Categoria] {
			continue
		}
		if f.Status != "" && f.Status != StatusAll && o.Estado != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out
}

func keySet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[labels.NormalizeKey(v)] = true
	}
	return set
}

// Counts is a grouped tally that remembers the order keys were first
// seen, so rankings over it break ties deterministically.
type Counts struct {
	order  []string
	counts map[string]int
}

// CountBy groups items under keyFn and counts them. Items mapping to an
// empty key are ignored.
func CountBy(items []domain.Observation, keyFn func(domain.Observation) string) *Counts {
	c := &Counts{counts: make(map[string]int)}
	for _, o := range items {
		k := keyFn(o)
		if k == "" {
			continue
		}
		if _, seen := c.counts[k]; !seen {
			c.order = append(c.order, k)
		}
		c.counts[k]++
	}
	return c
}

// Get returns the count for a key.
func (c *Counts) Get(key string) int { return c.counts[key] }

// Len returns the number of distinct keys.
func (c *Counts) Len() int { return len(c.order) }

// Total sums all counts.
func (c *Counts) Total() int {
	sum := 0
	for _, n := range c.counts {
		sum += n
	}
	return sum
}

// Entry is one ranked (key, count) pair. Label is the human rendering
// of Key when the ranking is built for display.
type Entry struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

// Ranking is the result of TopN: at most N leading entries plus the
// summed remainder of everything that did not make the cut.
type Ranking struct {
	Top  []Entry `json:"top"`
	Rest int     `json:"rest"`
}

// TopN ranks counts descending, ties broken by first-seen order, and
// truncates to n. Rest carries the sum of the excluded entries so that
// sum(Top)+Rest equals the grand total.
func TopN(c *Counts, n int) Ranking {
	entries := make([]Entry, 0, c.Len())
	for _, k := range c.order {
		entries = append(entries, Entry{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	if n < 0 {
		n = 0
	}
	if n > len(entries) {
		n = len(entries)
	}
	r := Ranking{Top: entries[:n]}
	for _, e := range entries[n:] {
		r.Rest += e.Count
	}
	return r
}

// Unit selects the time-bucket granularity of a series.
type Unit string

const (
	ByDay   Unit = "day"
	ByWeek  Unit = "week"
	ByMonth Unit = "month"
)

func (u Unit) key(t time.Time) string {
	switch u {
	case ByWeek:
		return dateutil.WeekKey(t)
	case ByMonth:
		return dateutil.MonthKey(t)
	default:
		return dateutil.DayKey(t)
	}
}

// TimeSeries carries the created and closed counts per period. Labels is
// the sorted union of periods seen in either series; both series are
// zero-filled on gaps, never sparse.
type TimeSeries struct {
	Labels  []string `json:"labels"`
	Created []int    `json:"created"`
	Closed  []int    `json:"closed"`
}

// BucketSeries buckets creation and closure timestamps by unit. Records
// with an unparseable timestamp are skipped for that series only.
func BucketSeries(items []domain.Observation, unit Unit) TimeSeries {
	created := make(map[string]int)
	closed := make(map[string]int)
	for _, o := range items {
		if t, err := time.Parse(time.RFC3339, o.CreadoEn); err == nil {
			created[unit.key(t.Local())]++
		}
		if o.CerradoEn != nil {
			if t, err := time.Parse(time.RFC3339, *o.CerradoEn); err == nil {
				closed[unit.key(t.Local())]++
			}
		}
	}

	labelSet := make(map[string]bool, len(created)+len(closed))
	for k := range created {
		labelSet[k] = true
	}
	for k := range closed {
		labelSet[k] = true
	}
	ts := TimeSeries{
		Labels:  make([]string, 0, len(labelSet)),
		Created: make([]int, 0, len(labelSet)),
		Closed:  make([]int, 0, len(labelSet)),
	}
	for k := range labelSet {
		ts.Labels = append(ts.Labels, k)
	}
	sort.Strings(ts.Labels)
	for _, k := range ts.Labels {
		ts.Created = append(ts.Created, created[k])
		ts.Closed = append(ts.Closed, closed[k])
	}
	return ts
}

// Tally is the count per risk category, exhaustive over the three fixed
// values.
type Tally struct {
	Bajo  int `json:"bajo"`
	Medio int `json:"medio"`
	Alto  int `json:"alto"`
}

// SeverityTally counts items per category. Unknown category values are
// not counted anywhere.
func SeverityTally(items []domain.Observation) Tally {
	var t Tally
	for _, o := range items {
		switch o.Categoria {
		case domain.CategoriaBajo:
			t.Bajo++
		case domain.CategoriaMedio:
			t.Medio++
		case domain.CategoriaAlto:
			t.Alto++
		}
	}
	return t
}

// Summary is the dashboard headline block: totals, pending counts per
// category and the top pending areas and responsibles.
type Summary struct {
	Total             int     `json:"total"`
	Pendientes        int     `json:"pendientes"`
	Cerradas          int     `json:"cerradas"`
	PendientesPorCat  Tally   `json:"pendientes_por_categoria"`
	TopAreas          Ranking `json:"top_areas"`
	TopResponsables   Ranking `json:"top_responsables"`
}

// Summarize builds the dashboard summary over a snapshot. Rankings are
// computed over pending records only and keyed by normalized labels so
// capitalization variants of the same area or name tally together.
func Summarize(items []domain.Observation, topN int) Summary {
	var pending []domain.Observation
	s := Summary{Total: len(items)}
	for _, o := range items {
		if o.Pending() {
			pending = append(pending, o)
			s.Pendientes++
		} else if o.Closed() {
			s.Cerradas++
		}
	}
	s.PendientesPorCat = SeverityTally(pending)
	s.TopAreas = labeled(TopN(CountBy(pending, func(o domain.Observation) string {
		return labels.NormalizeKey(o.Area)
	}), topN))
	s.TopResponsables = labeled(TopN(CountBy(pending, func(o domain.Observation) string {
		return labels.NormalizeKey(o.Responsable)
	}), topN))
	return s
}

// labeled attaches the display rendering to each ranked entry, so that
// charts and tables show "Planta SX EW" or "usuario-9f8a6c2e" rather
// than the raw grouping key.
func labeled(r Ranking) Ranking {
	for i := range r.Top {
		r.Top[i].Label = labels.DisplayLabel(r.Top[i].Key)
	}
	return r
}
