package mirror

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigia/internal/domain"
)

func sampleObs() domain.Observation {
	cerradoPor := "b@x"
	cerradoEn := "2024-03-05T12:00:00Z"
	cierre := "reparado"
	return domain.Observation{
		ID:                "o1",
		Estado:            domain.EstadoCerrada,
		Responsable:       "Juan Perez",
		Area:              "chancado",
		EquipoLugar:       "faja 3",
		Categoria:         domain.CategoriaAlto,
		Plazo:             "2024-03-10",
		Descripcion:       "guarda suelta",
		CreadoPor:         "a@x",
		CreadoEn:          "2024-03-01T09:00:00Z",
		CerradoPor:        &cerradoPor,
		CerradoEn:         &cerradoEn,
		CierreDescripcion: &cierre,
	}
}

func TestNotifyPostsRow(t *testing.T) {
	var got payload
	var header http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, "secreto")
	n.Now = func() time.Time { return time.Date(2024, 3, 5, 12, 30, 0, 0, time.UTC) }
	n.Notify(context.Background(), ActionClose, sampleObs())

	if got.Action != ActionClose {
		t.Errorf("action = %q", got.Action)
	}
	if header.Get("Authorization") != "Bearer secreto" {
		t.Errorf("missing bearer token")
	}
	if len(got.Row) != 15 {
		t.Fatalf("row has %d columns, want 15", len(got.Row))
	}
	if got.Row[0] != "2024-03-05T12:30:00Z" || got.Row[1] != ActionClose || got.Row[2] != "o1" {
		t.Errorf("row head = %v", got.Row[:3])
	}
	if got.Row[12] != "b@x" || got.Row[14] != "reparado" {
		t.Errorf("closure columns = %v", got.Row[12:])
	}
}

func TestNotifySwallowsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	// Must not panic or propagate anything.
	New(srv.URL, "").Notify(context.Background(), ActionCreate, sampleObs())
	New("http://127.0.0.1:0/unreachable", "").Notify(context.Background(), ActionCreate, sampleObs())
}

func TestNotifyDisabled(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), ActionCreate, sampleObs())
	New("", "").Notify(context.Background(), ActionCreate, sampleObs())
}

func TestRowPendingRecord(t *testing.T) {
	o := sampleObs()
	o.Estado = domain.EstadoPendiente
	o.CerradoPor = nil
	o.CerradoEn = nil
	o.CierreDescripcion = nil
	row := Row(time.Now().UTC(), ActionCreate, o)
	for i := 12; i < 15; i++ {
		if row[i] != "" {
			t.Errorf("column %d = %q, want empty", i, row[i])
		}
	}
}
