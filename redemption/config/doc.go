// Package config loads and validates the gateway configuration from
// environment variables. Configuration is env-only; there are no files.
package config
