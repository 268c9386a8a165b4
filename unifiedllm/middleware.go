package unifiedllm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware logs each provider call at debug level and failures at
// warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			logger.Warn("model call failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("model call",
			append(fields,
				zap.String("finish_reason", resp.FinishReason.Reason),
				zap.Int("input_tokens", resp.Usage.InputTokens),
				zap.Int("output_tokens", resp.Usage.OutputTokens),
			)...)
		return resp, nil
	}
}
