package scanner

import (
	"context"
	"errors"
	"log/slog"
)

// Engine produces a verdict for a file on disk.
type Engine interface {
	Scan(ctx context.Context, path string) (Verdict, error)
}

// Fallback never runs anything and always issues FallbackVerdict.
type Fallback struct{}

// Scan implements Engine.
func (Fallback) Scan(context.Context, string) (Verdict, error) {
	return FallbackVerdict(), nil
}

// Resilient runs the primary engine and degrades to the fallback verdict
// when the primary reports ErrEngineUnavailable. Any other error becomes a
// StatusError verdict, so callers always receive a verdict.
type Resilient struct {
	primary Engine
	logger  *slog.Logger
}

// NewResilient wraps primary.
func NewResilient(primary Engine, logger *slog.Logger) *Resilient {
	return &Resilient{primary: primary, logger: logger}
}

// Scan implements Engine. The returned error is always nil.
func (r *Resilient) Scan(ctx context.Context, path string) (Verdict, error) {
	v, err := r.primary.Scan(ctx, path)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrEngineUnavailable):
		r.logger.Warn("scan engine unavailable, issuing fallback verdict",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return FallbackVerdict(), nil
	default:
		r.logger.Error("scan engine fault",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return ErrorVerdict(v.Version, err), nil
	}
}
