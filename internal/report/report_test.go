package report

import (
	"reflect"
	"testing"
	"time"

	"vigia/internal/domain"
)

func obs(id, estado, area, categoria, responsable, creadoEn string) domain.Observation {
	return domain.Observation{
		ID:          id,
		Estado:      estado,
		Area:        area,
		Categoria:   categoria,
		Responsable: responsable,
		CreadoEn:    creadoEn,
	}
}

func ts(y int, m time.Month, d, hh int) string {
	return time.Date(y, m, d, hh, 0, 0, 0, time.Local).Format(time.RFC3339)
}

func sampleSet() []domain.Observation {
	return []domain.Observation{
		obs("1", domain.EstadoPendiente, "Chancado", domain.CategoriaAlto, "Juan", ts(2024, time.March, 1, 9)),
		obs("2", domain.EstadoPendiente, "chancado", domain.CategoriaMedio, "Maria", ts(2024, time.March, 2, 10)),
		obs("3", domain.EstadoCerrada, "Molienda", domain.CategoriaAlto, "Juan", ts(2024, time.March, 3, 23)),
		obs("4", domain.EstadoPendiente, "Flotación", domain.CategoriaBajo, "Pedro", ts(2024, time.March, 10, 8)),
	}
}

func TestFilterDateRange(t *testing.T) {
	f := Filter{From: "2024-03-02", To: "2024-03-03"}
	got := f.Apply(sampleSet())
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	// To is end-of-day inclusive: record 3 was created at 23:00 on the
	// boundary day and must pass.
	if got[1].ID != "3" {
		t.Errorf("boundary record missing, got %v", got)
	}
}

func TestFilterUnparseableCreatedAt(t *testing.T) {
	items := append(sampleSet(), obs("5", domain.EstadoPendiente, "Chancado", domain.CategoriaAlto, "Ana", "ayer"))
	got := Filter{}.Apply(items)
	for _, o := range got {
		if o.ID == "5" {
			t.Error("record with unparseable creation date passed the filter")
		}
	}
	if len(got) != 4 {
		t.Errorf("got %d records, want 4", len(got))
	}
}

func TestFilterAreaNormalization(t *testing.T) {
	got := Filter{Areas: []string{"CHANCADO"}}.Apply(sampleSet())
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (both capitalizations of chancado)", len(got))
	}
	got = Filter{Areas: []string{"flotacion"}}.Apply(sampleSet())
	if len(got) != 1 || got[0].ID != "4" {
		t.Errorf("diacritics-insensitive area match failed: %v", got)
	}
}

func TestFilterStatusAndCategory(t *testing.T) {
	if got := (Filter{Status: domain.EstadoCerrada}).Apply(sampleSet()); len(got) != 1 {
		t.Errorf("status filter: got %d, want 1", len(got))
	}
	if got := (Filter{Status: StatusAll}).Apply(sampleSet()); len(got) != 4 {
		t.Errorf("status all: got %d, want 4", len(got))
	}
	if got := (Filter{Categories: []string{domain.CategoriaAlto}}).Apply(sampleSet()); len(got) != 2 {
		t.Errorf("category filter: got %d, want 2", len(got))
	}
}

func TestFilterIdempotent(t *testing.T) {
	f := Filter{From: "2024-03-01", To: "2024-03-05", Status: domain.EstadoPendiente}
	once := f.Apply(sampleSet())
	twice := f.Apply(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("filter not idempotent: %v vs %v", once, twice)
	}
}

func TestTopNInvariant(t *testing.T) {
	items := sampleSet()
	counts := CountBy(items, func(o domain.Observation) string { return o.Responsable })
	for n := 0; n <= counts.Len()+1; n++ {
		r := TopN(counts, n)
		if len(r.Top) > n {
			t.Errorf("TopN(%d) returned %d entries", n, len(r.Top))
		}
		sum := r.Rest
		for _, e := range r.Top {
			sum += e.Count
		}
		if sum != counts.Total() {
			t.Errorf("TopN(%d): sum(top)+rest = %d, want %d", n, sum, counts.Total())
		}
	}
}

func TestTopNTieBreak(t *testing.T) {
	items := []domain.Observation{
		obs("1", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.March, 1, 1)),
		obs("2", domain.EstadoPendiente, "b", domain.CategoriaAlto, "x", ts(2024, time.March, 1, 2)),
		obs("3", domain.EstadoPendiente, "c", domain.CategoriaAlto, "x", ts(2024, time.March, 1, 3)),
	}
	counts := CountBy(items, func(o domain.Observation) string { return o.Area })
	r := TopN(counts, 2)
	// All tied at 1: first-seen order decides.
	if r.Top[0].Key != "a" || r.Top[1].Key != "b" || r.Rest != 1 {
		t.Errorf("tie break broke first-seen order: %+v", r)
	}
}

func TestBucketSeriesZeroFill(t *testing.T) {
	closedAt := ts(2024, time.March, 5, 12)
	items := []domain.Observation{
		obs("1", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.March, 1, 9)),
		obs("2", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.March, 1, 17)),
		{ID: "3", Estado: domain.EstadoCerrada, Area: "a", Categoria: domain.CategoriaAlto,
			CreadoEn: ts(2024, time.March, 3, 9), CerradoEn: &closedAt},
	}
	got := BucketSeries(items, ByDay)
	wantLabels := []string{"2024-03-01", "2024-03-03", "2024-03-05"}
	if !reflect.DeepEqual(got.Labels, wantLabels) {
		t.Fatalf("labels = %v, want %v", got.Labels, wantLabels)
	}
	if !reflect.DeepEqual(got.Created, []int{2, 1, 0}) {
		t.Errorf("created = %v", got.Created)
	}
	if !reflect.DeepEqual(got.Closed, []int{0, 0, 1}) {
		t.Errorf("closed = %v", got.Closed)
	}
}

func TestBucketSeriesWeekAndMonth(t *testing.T) {
	items := []domain.Observation{
		obs("1", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.January, 3, 9)),  // Wed
		obs("2", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.January, 7, 9)),  // Sun, same week
		obs("3", domain.EstadoPendiente, "a", domain.CategoriaAlto, "x", ts(2024, time.February, 1, 9)),
	}
	week := BucketSeries(items, ByWeek)
	if week.Labels[0] != "2024-01-01" || week.Created[0] != 2 {
		t.Errorf("week series = %v / %v", week.Labels, week.Created)
	}
	month := BucketSeries(items, ByMonth)
	if !reflect.DeepEqual(month.Labels, []string{"2024-01", "2024-02"}) {
		t.Errorf("month labels = %v", month.Labels)
	}
}

func TestSeverityTally(t *testing.T) {
	got := SeverityTally(sampleSet())
	if got != (Tally{Bajo: 1, Medio: 1, Alto: 2}) {
		t.Errorf("tally = %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleSet(), 5)
	if s.Total != 4 || s.Pendientes != 3 || s.Cerradas != 1 {
		t.Fatalf("totals = %+v", s)
	}
	if s.PendientesPorCat != (Tally{Bajo: 1, Medio: 1, Alto: 1}) {
		t.Errorf("pending tally = %+v", s.PendientesPorCat)
	}
	if s.TopAreas.Top[0].Key != "chancado" || s.TopAreas.Top[0].Count != 2 {
		t.Errorf("top areas = %+v", s.TopAreas)
	}
	if s.TopAreas.Top[0].Label != "Chancado" {
		t.Errorf("top area label = %q, want %q", s.TopAreas.Top[0].Label, "Chancado")
	}
}

func TestSummarizeRendersLabels(t *testing.T) {
	items := []domain.Observation{
		obs("1", domain.EstadoPendiente, "planta sx ew", domain.CategoriaAlto,
			"9f8a6c2e-1b7d-4e3a-9c55-0d2f8a61b7aa", ts(2024, time.March, 1, 9)),
		obs("2", domain.EstadoPendiente, "planta sx ew", domain.CategoriaAlto,
			"Juan Perez", ts(2024, time.March, 2, 9)),
	}
	s := Summarize(items, 5)
	if s.TopAreas.Top[0].Label != "Planta SX EW" {
		t.Errorf("area label = %q, want %q", s.TopAreas.Top[0].Label, "Planta SX EW")
	}
	var found bool
	for _, e := range s.TopResponsables.Top {
		if e.Label == "usuario-9f8a6c2e" {
			found = true
		}
		if len(e.Label) > 30 {
			t.Errorf("raw identifier leaked into label: %q", e.Label)
		}
	}
	if !found {
		t.Errorf("opaque id not shortened: %+v", s.TopResponsables)
	}
}
