// Package zap bridges the redemption/log abstraction to zap while preserving
// structured fields and OpenTelemetry trace correlation. The injector builds
// environment-tuned loggers whose records are also exported through the
// otelzap bridge.
package zap
