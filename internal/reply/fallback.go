package reply

import (
	"context"

	"go.uber.org/zap"

	"github.com/support-triage/triage/internal/metrics"
)

// FallbackGenerator tries a preferred generator and answers with the
// fallback when it fails. The fallback must not fail.
type FallbackGenerator struct {
	preferred Generator
	fallback  Generator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewFallbackGenerator(preferred, fallback Generator, logger *zap.Logger, m *metrics.Metrics) *FallbackGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackGenerator{
		preferred: preferred,
		fallback:  fallback,
		logger:    logger,
		metrics:   m,
	}
}

func (g *FallbackGenerator) Name() string {
	return g.preferred.Name() + "+" + g.fallback.Name()
}

func (g *FallbackGenerator) Generate(ctx context.Context, req Request) Result {
	res := g.preferred.Generate(ctx, req)
	if res.Err == nil {
		return res
	}

	errType := ErrorType(res.Err)
	var emailID string
	if req.Email != nil {
		emailID = req.Email.ID
	}
	g.logger.Warn("External generation failed, using template reply",
		zap.String("email_id", emailID),
		zap.String("generator", g.preferred.Name()),
		zap.String("error_type", errType),
		zap.Error(res.Err),
	)
	g.metrics.RecordExternalFailure(errType)

	fb := g.fallback.Generate(ctx, req)
	fb.PreferredErr = res.Err
	return fb
}
