//go:build !debug_trace
// +build !debug_trace

// logger_notrace.go turns trace logging into no-ops unless built with the debug_trace tag.

package logger

import (
	"context"
)

func Tracef(ctx context.Context, format string, args ...any) {}

func TraceDump(ctx context.Context, message string, value any) {}
