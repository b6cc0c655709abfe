package logger

import (
	"context"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
)

// FromCtx returns the logger carried by the context.
func FromCtx(ctx context.Context) logger.Logger {
	return logger.FromCtx(ctx)
}

// CtxWithLogger returns a derived context carrying the logger.
func CtxWithLogger(ctx context.Context, l logger.Logger) context.Context {
	return logger.CtxWithLogger(ctx, l)
}

// CtxWithField attaches a structured field to every message logged with
// the returned context.
func CtxWithField(ctx context.Context, key string, value any) context.Context {
	return belt.WithField(ctx, key, value)
}
