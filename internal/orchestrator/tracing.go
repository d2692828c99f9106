package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/content-crawler/internal/domain"
)

const tracerName = "github.com/jonesrussell/north-cloud/content-crawler/orchestrator"

// tracer resolves through the global provider, which is a no-op until one
// is installed.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Caller is responsible for calling span.End().
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func jobSpan(ctx context.Context, id string, op domain.Operation) (context.Context, trace.Span) {
	return tracer().Start(ctx, "orchestrator.execute_job",
		trace.WithAttributes(
			attribute.String("job.id", id),
			attribute.String("job.operation", string(op)),
		),
	)
}

// Caller is responsible for calling span.End().
//
//nolint:spancheck // span is returned to caller who manages its lifecycle
func sourceSpan(ctx context.Context, src domain.ContentSource, limit int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "orchestrator.crawl_source",
		trace.WithAttributes(
			attribute.String("source.id", src.ID),
			attribute.String("source.type", string(src.Type)),
			attribute.Int("crawl.limit", limit),
		),
	)
}

// endSpan records err, if any, and ends s.
func endSpan(s trace.Span, err error) {
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, err.Error())
	} else {
		s.SetStatus(codes.Ok, "")
	}
	s.End()
}

func crawlAttributes(stats domain.CrawlStats) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("crawl.attempted", stats.Attempted),
		attribute.Int("crawl.inserted", stats.Inserted),
		attribute.Int("crawl.updated", stats.Updated),
		attribute.Int("crawl.duplicates", stats.Duplicates),
		attribute.Int("crawl.failed", stats.Failed),
	}
}
