// Package semaphore classifies how close an open observation is to its
// due date: verde (on time), amarillo (approaching), rojo (overdue).
package semaphore

import (
	"time"

	"vigia/internal/dateutil"
)

type Level string

const (
	Verde    Level = "verde"
	Amarillo Level = "amarillo"
	Rojo     Level = "rojo"
)

const (
	LabelEnTiempo  = "En tiempo"
	LabelPorVencer = "Por vencer"
	LabelVencido   = "Vencido"
)

// DefaultWarnRatio is the share of the assigned window that may elapse
// before an observation turns amarillo.
const DefaultWarnRatio = 0.75

type Result struct {
	Level Level  `json:"nivel" enum:"verde,amarillo,rojo"`
	Label string `json:"etiqueta"`
}

// Classify maps (creation time, due-date text, today) to a traffic-light
// level. An unparseable due date or a zero creation time yields amarillo:
// the record cannot be placed on the timeline, so it is shown as
// cautionary rather than breaking the caller.
//
// The due date itself is exclusive: an observation due today is already
// vencido. The window between creation and due date is floored at one day
// so a same-day due date cannot divide by zero.
func Classify(createdAt time.Time, dueText string, today time.Time) Result {
	return ClassifyRatio(createdAt, dueText, today, DefaultWarnRatio)
}

// ClassifyRatio is Classify with an explicit warn threshold, for sites
// that tune when the amarillo band starts.
func ClassifyRatio(createdAt time.Time, dueText string, today time.Time, warnRatio float64) Result {
	due, ok := dateutil.ParseDueDate(dueText)
	if !ok || createdAt.IsZero() {
		return Result{Level: Amarillo, Label: LabelPorVencer}
	}
	if warnRatio <= 0 || warnRatio > 1 {
		warnRatio = DefaultWarnRatio
	}

	today0 := dateutil.Truncate(today)
	due0 := dateutil.Truncate(due)
	created0 := dateutil.Truncate(createdAt)

	if !today0.Before(due0) {
		return Result{Level: Rojo, Label: LabelVencido}
	}

	total := dateutil.DayDiff(created0, due0)
	if total < 1 {
		total = 1
	}
	elapsed := dateutil.DayDiff(created0, today0)
	if elapsed < 0 {
		elapsed = 0
	}
	if float64(elapsed)/float64(total) >= warnRatio {
		return Result{Level: Amarillo, Label: LabelPorVencer}
	}
	return Result{Level: Verde, Label: LabelEnTiempo}
}
