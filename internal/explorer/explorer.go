// Package explorer answers column and correlation queries from the analysis
// backend when one is configured and falls back to the local profiling engine
// when it is not or when the call fails.
package explorer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/datasage-cli/internal/backend"
	"github.com/KaramelBytes/datasage-cli/internal/profile"
)

// Source tells the caller where a payload came from.
type Source string

const (
	SourceBackend Source = "backend"
	SourceLocal   Source = "local"
)

// Backend is the subset of the backend client the explorer uses.
type Backend interface {
	ColumnStatistics(ctx context.Context, sessionID, column string) (*backend.ColumnStatistics, error)
	Distribution(ctx context.Context, sessionID, column string) (*backend.Distribution, error)
	Correlation(ctx context.Context, sessionID string) (*backend.Correlation, error)
}

// Explorer routes queries to the backend or the local engine.
type Explorer struct {
	backend Backend
	logger  *zap.Logger
}

// New returns an Explorer. A nil backend means local-only; a nil logger is
// replaced with a no-op logger.
func New(b Backend, logger *zap.Logger) *Explorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Explorer{backend: b, logger: logger}
}

func (e *Explorer) useBackend(sessionID string) bool {
	return e.backend != nil && sessionID != ""
}

// fellBack logs a backend failure. It returns the context error instead when
// the caller has given up, so cancellation is never masked by a fallback.
func (e *Explorer) fellBack(ctx context.Context, op, sessionID string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.logger.Warn("backend unavailable, using local engine",
		zap.String("op", op),
		zap.String("session", sessionID),
		zap.Error(err),
	)
	return nil
}

// ColumnStatistics returns aggregate statistics for one column.
func (e *Explorer) ColumnStatistics(ctx context.Context, sessionID string, ds *profile.Dataset, column string) (*backend.ColumnStatistics, Source, error) {
	if e.useBackend(sessionID) {
		st, err := e.backend.ColumnStatistics(ctx, sessionID, column)
		if err == nil {
			return st, SourceBackend, nil
		}
		if err := e.fellBack(ctx, "column_statistics", sessionID, err); err != nil {
			return nil, SourceBackend, err
		}
	}
	p, err := profile.ProfileColumn(ds, column)
	if err != nil {
		return nil, SourceLocal, fmt.Errorf("local statistics: %w", err)
	}
	st := backend.StatisticsFromProfile(p)
	return &st, SourceLocal, nil
}

// Distribution returns the histogram of one column.
func (e *Explorer) Distribution(ctx context.Context, sessionID string, ds *profile.Dataset, column string) (*backend.Distribution, Source, error) {
	if e.useBackend(sessionID) {
		d, err := e.backend.Distribution(ctx, sessionID, column)
		if err == nil {
			return d, SourceBackend, nil
		}
		if err := e.fellBack(ctx, "distribution", sessionID, err); err != nil {
			return nil, SourceBackend, err
		}
	}
	h, err := profile.HistogramFor(ds, column)
	if err != nil {
		return nil, SourceLocal, fmt.Errorf("local distribution: %w", err)
	}
	d := backend.DistributionFromHistogram(h)
	return &d, SourceLocal, nil
}

// Correlation returns pairwise correlations between numeric columns.
func (e *Explorer) Correlation(ctx context.Context, sessionID string, ds *profile.Dataset) (*backend.Correlation, Source, error) {
	if e.useBackend(sessionID) {
		c, err := e.backend.Correlation(ctx, sessionID)
		if err == nil {
			return c, SourceBackend, nil
		}
		if err := e.fellBack(ctx, "correlation", sessionID, err); err != nil {
			return nil, SourceBackend, err
		}
	}
	m, err := profile.Correlations(ds)
	if err != nil {
		return nil, SourceLocal, fmt.Errorf("local correlation: %w", err)
	}
	c := backend.CorrelationFromMatrix(m)
	return &c, SourceLocal, nil
}
