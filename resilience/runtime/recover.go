package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/adstackhq/lib-resilience/resilience/log"
)

// RecoverAndLog recovers a panic in the calling goroutine and logs it with
// the captured stack. Use it as `defer runtime.RecoverAndLog(ctx, logger,
// component, operation)` at the top of background loops.
func RecoverAndLog(ctx context.Context, logger log.Logger, component, operation string) {
	recovered := recover()
	if recovered == nil {
		return
	}

	logPanicWithStack(ctx, logger, component, operation, recovered, debug.Stack())
}

// SafeGo runs fn in a new goroutine, recovering and logging any panic.
func SafeGo(ctx context.Context, logger log.Logger, component, operation string, fn func(ctx context.Context)) {
	go func() {
		defer RecoverAndLog(ctx, logger, component, operation)

		fn(ctx)
	}()
}

func logPanicWithStack(
	ctx context.Context,
	logger log.Logger,
	component, operation string,
	panicValue any,
	stack []byte,
) {
	if logger == nil {
		return
	}

	logger.Log(ctx, log.LevelError, "recovered panic",
		log.String("component", component),
		log.String("operation", operation),
		log.String("panic", formatPanicValue(panicValue)),
		log.String("stack", string(stack)),
	)
}

func formatPanicValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "nil"
	case error:
		return typed.Error()
	case string:
		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}
