package engine

import (
	"context"

	"vigia/internal/domain"
	"vigia/internal/repo"
	"vigia/internal/report"
)

// Snapshot loads every observation and applies the reporting filter in
// memory. The whole record set of a site fits comfortably; the
// aggregation functions stay pure over it.
func (e Engine) Snapshot(ctx context.Context, f report.Filter) ([]domain.Observation, error) {
	items, err := e.Repo.ListObservations(ctx, repo.ObservationFilters{})
	if err != nil {
		return nil, err
	}
	return f.Apply(items), nil
}

// Summary builds the dashboard summary over the filtered snapshot.
func (e Engine) Summary(ctx context.Context, f report.Filter, topN int) (report.Summary, error) {
	items, err := e.Snapshot(ctx, f)
	if err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(items, topN), nil
}

// Series buckets the filtered snapshot into a created/closed time series.
func (e Engine) Series(ctx context.Context, f report.Filter, unit report.Unit) (report.TimeSeries, error) {
	items, err := e.Snapshot(ctx, f)
	if err != nil {
		return report.TimeSeries{}, err
	}
	return report.BucketSeries(items, unit), nil
}
