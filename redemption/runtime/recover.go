package runtime

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/LerianStudio/redemption-gateway/redemption/log"
)

// RestartPolicy controls what happens after a panic is recovered.
type RestartPolicy int

const (
	// KeepRunning swallows the panic after logging so the process continues.
	KeepRunning RestartPolicy = iota
	// CrashProcess re-panics after logging, letting the process die loudly.
	CrashProcess
)

// Logger is the minimal logging surface the recovery helpers need.
// It is satisfied by log.Logger.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// SafeGo runs fn on a new goroutine with panic recovery.
// name labels the goroutine in panic logs.
func SafeGo(logger Logger, name string, policy RestartPolicy, fn func()) {
	go func() {
		defer RecoverWithPolicy(logger, name, policy)

		fn()
	}()
}

// SafeGoWithContext runs fn on a new goroutine with panic recovery,
// passing the context through to fn.
func SafeGoWithContext(ctx context.Context, logger Logger, name string, policy RestartPolicy, fn func(context.Context)) {
	SafeGoWithContextAndComponent(ctx, logger, "", name, policy, fn)
}

// SafeGoWithContextAndComponent runs fn on a new goroutine with panic
// recovery, labeling panic logs with both a component and a goroutine name.
func SafeGoWithContextAndComponent(ctx context.Context, logger Logger, component, name string, policy RestartPolicy, fn func(context.Context)) {
	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)

		fn(ctx)
	}()
}

// RecoverWithPolicy recovers a panic on the current goroutine, logs it with a
// stack trace, and applies the restart policy. Use via defer.
func RecoverWithPolicy(logger Logger, name string, policy RestartPolicy) {
	recoverAndApply(context.Background(), logger, "", name, policy, recover())
}

// RecoverWithPolicyAndContext is RecoverWithPolicy with context and component
// labels carried into the panic log. Use via defer.
func RecoverWithPolicyAndContext(ctx context.Context, logger Logger, component, name string, policy RestartPolicy) {
	recoverAndApply(ctx, logger, component, name, policy, recover())
}

// HandlePanicValue processes an already-recovered panic value: it logs the
// panic with a stack trace, records the panic metric, and reports to the
// error service. Callers that need custom behavior after recovery (cleanup,
// exit) use this instead of RecoverWithPolicy.
func HandlePanicValue(ctx context.Context, logger Logger, panicValue any, component, name string) {
	if panicValue == nil {
		return
	}

	stack := debug.Stack()

	logPanicWithStack(ctx, logger, component, name, panicValue, stack)
	recordPanicMetric(ctx, component, name)
	reportPanicToErrorService(ctx, panicValue, stack, component, name)
}

func recoverAndApply(ctx context.Context, logger Logger, component, name string, policy RestartPolicy, recovered any) {
	if recovered == nil {
		return
	}

	HandlePanicValue(ctx, logger, recovered, component, name)

	if policy == CrashProcess {
		panic(recovered)
	}
}

func logPanicWithStack(ctx context.Context, logger Logger, component, name string, panicValue any, stack []byte) {
	if logger == nil {
		return
	}

	fields := []log.Field{
		log.String("goroutine", name),
		log.String("panic", fmt.Sprintf("%v", panicValue)),
		log.String("stack", string(stack)),
	}

	if component != "" {
		fields = append(fields, log.String("component", component))
	}

	logger.Log(ctx, log.LevelError, "panic recovered", fields...)
}
