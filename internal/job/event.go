package job

import (
	"context"
	"fmt"
	"jobseries/pkg/cloudevent"
)

// Notifier delivers lifecycle events. Delivery failures are the notifier's
// concern and never change the outcome of the operation that emitted them.
type Notifier interface {
	Notify(ctx context.Context, event *cloudevent.CloudEvent)
}

// EventBuilder builds CloudEvents for job lifecycle changes.
type EventBuilder struct {
	source string
}

// NewEventBuilder creates a new EventBuilder.
func NewEventBuilder(source string) *EventBuilder {
	return &EventBuilder{source: source}
}

// StatusChanged creates a status transition event.
func (b *EventBuilder) StatusChanged(j *Job, from Status, trigger Trigger) *cloudevent.CloudEvent {
	data := map[string]any{
		"jobId":    j.ID,
		"seriesId": j.SeriesID,
		"from":     string(from),
		"status":   string(j.Status),
		"trigger":  string(trigger),
	}
	return cloudevent.New(cloudevent.TypeJobStatusChanged, b.source, jobSubject(j.ID), data)
}

// JobDeleted creates a job deletion event.
func (b *EventBuilder) JobDeleted(j *Job) *cloudevent.CloudEvent {
	data := map[string]any{
		"jobId":    j.ID,
		"seriesId": j.SeriesID,
		"status":   string(j.Status),
	}
	return cloudevent.New(cloudevent.TypeJobDeleted, b.source, jobSubject(j.ID), data)
}

// SeriesDeleted creates a series deletion event.
func (b *EventBuilder) SeriesDeleted(s *Series) *cloudevent.CloudEvent {
	data := map[string]any{
		"seriesId": s.ID,
		"owner":    s.Owner,
		"name":     s.Name,
	}
	return cloudevent.New(cloudevent.TypeSeriesDeleted, b.source, fmt.Sprintf("series/%d", s.ID), data)
}

func jobSubject(id int64) string {
	return fmt.Sprintf("jobs/%d", id)
}
