package domain

import (
	"context"
	"time"
)

// BusinessMetric is a product event kept for later analysis.
type BusinessMetric struct {
	Event      string
	UserID     string
	ChapterID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventProfileCreated records the first profile fetch of a new reader.
	BusinessMetricEventProfileCreated = "profile_created"
	// BusinessMetricEventChapterPublished records a chapter becoming visible to readers.
	BusinessMetricEventChapterPublished = "chapter_published"
	// BusinessMetricEventChapterCompleted records a reader crossing the completion threshold.
	BusinessMetricEventChapterCompleted = "chapter_completed"
	// BusinessMetricEventChapterLiked records a like being added.
	BusinessMetricEventChapterLiked = "chapter_liked"
)

// BusinessMetricRepo stores product events.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}

// NopBusinessMetrics discards every event.
type NopBusinessMetrics struct{}

func (NopBusinessMetrics) RecordBusinessMetric(context.Context, BusinessMetric) error { return nil }
