package semaphore

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestClassifyWindow(t *testing.T) {
	created := day(2024, time.January, 1)
	due := "2024-01-11"

	cases := []struct {
		name  string
		today time.Time
		want  Level
	}{
		{"early in window", day(2024, time.January, 5), Verde},
		{"past warn threshold", day(2024, time.January, 9), Amarillo},
		{"just below threshold", day(2024, time.January, 8), Verde},
		{"due date itself", day(2024, time.January, 11), Rojo},
		{"after due date", day(2024, time.February, 1), Rojo},
	}
	for _, tc := range cases {
		got := Classify(created, due, tc.today)
		if got.Level != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got.Level, tc.want)
		}
	}
}

func TestClassifyLabels(t *testing.T) {
	created := day(2024, time.January, 1)

	if r := Classify(created, "2024-01-11", day(2024, time.January, 2)); r.Label != LabelEnTiempo {
		t.Errorf("verde label = %q", r.Label)
	}
	if r := Classify(created, "2024-01-11", day(2024, time.January, 10)); r.Label != LabelPorVencer {
		t.Errorf("amarillo label = %q", r.Label)
	}
	if r := Classify(created, "2024-01-11", day(2024, time.January, 11)); r.Label != LabelVencido {
		t.Errorf("rojo label = %q", r.Label)
	}
}

func TestClassifyUnparseableDue(t *testing.T) {
	r := Classify(day(2024, time.January, 1), "cuanto antes", day(2024, time.January, 2))
	if r.Level != Amarillo {
		t.Errorf("unparseable due: got %s, want amarillo", r.Level)
	}
	r = Classify(day(2024, time.January, 1), "", day(2024, time.January, 2))
	if r.Level != Amarillo {
		t.Errorf("empty due: got %s, want amarillo", r.Level)
	}
}

func TestClassifyZeroCreation(t *testing.T) {
	r := Classify(time.Time{}, "2024-01-11", day(2024, time.January, 2))
	if r.Level != Amarillo {
		t.Errorf("zero creation: got %s, want amarillo", r.Level)
	}
}

func TestClassifySameDayDue(t *testing.T) {
	// Due on the creation day: the window floors at one day and the
	// observation is already vencido.
	r := Classify(day(2024, time.March, 4), "2024-03-04", day(2024, time.March, 4))
	if r.Level != Rojo {
		t.Errorf("same-day due: got %s, want rojo", r.Level)
	}
}

func TestClassifyTodayBeforeCreation(t *testing.T) {
	// Clock skew between the writer and the reader must not produce a
	// negative elapsed share.
	r := Classify(day(2024, time.January, 10), "2024-01-20", day(2024, time.January, 8))
	if r.Level != Verde {
		t.Errorf("today before creation: got %s, want verde", r.Level)
	}
}

func TestClassifyRatioCustomThreshold(t *testing.T) {
	created := day(2024, time.January, 1)
	due := "2024-01-11"
	today := day(2024, time.January, 6) // 5 of 10 elapsed

	if r := ClassifyRatio(created, due, today, 0.5); r.Level != Amarillo {
		t.Errorf("ratio 0.5: got %s, want amarillo", r.Level)
	}
	if r := ClassifyRatio(created, due, today, 0.75); r.Level != Verde {
		t.Errorf("ratio 0.75: got %s, want verde", r.Level)
	}
	// Out-of-range thresholds fall back to the default.
	if r := ClassifyRatio(created, due, today, 0); r.Level != Verde {
		t.Errorf("ratio 0 falls back: got %s, want verde", r.Level)
	}
}

func TestClassifyAcceptedDateForms(t *testing.T) {
	created := day(2024, time.January, 1)
	today := day(2024, time.January, 2)
	for _, due := range []string{"2024-01-11", "11/01/2024", "2024-01-11T00:00:00Z"} {
		if r := Classify(created, due, today); r.Level != Verde {
			t.Errorf("due %q: got %s, want verde", due, r.Level)
		}
	}
}
