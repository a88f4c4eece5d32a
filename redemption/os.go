package redemption

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// ErrNotPointer is returned when SetConfigFromEnvVars receives a non-pointer value.
var ErrNotPointer = errors.New("config must be a pointer to a struct")

// GetenvOrDefault returns the value of the environment variable, or the
// default when the variable is unset, empty, or whitespace-only.
func GetenvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return defaultValue
}

// GetenvBoolOrDefault returns the boolean value of the environment variable,
// or the default when the variable is unset or not a valid boolean.
func GetenvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetenvIntOrDefault returns the int64 value of the environment variable,
// or the default when the variable is unset or not a valid integer.
func GetenvIntOrDefault(key string, defaultValue int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// SetConfigFromEnvVars populates struct fields tagged with `env:"VAR_NAME"`
// from the corresponding environment variables. Supported field types are
// string, bool, and the integer kinds. Missing variables leave the zero value.
func SetConfigFromEnvVars(config any) error {
	rv := reflect.ValueOf(config)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return ErrNotPointer
	}

	elem := rv.Elem()
	if elem.Kind() != reflect.Struct {
		return ErrNotPointer
	}

	elemType := elem.Type()

	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)

		tag, ok := elemType.Field(i).Tag.Lookup("env")
		if !ok || tag == "" || !field.CanSet() {
			continue
		}

		raw := strings.TrimSpace(os.Getenv(tag))
		if raw == "" {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Bool:
			if parsed, err := strconv.ParseBool(raw); err == nil {
				field.SetBool(parsed)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && !field.OverflowInt(parsed) {
				field.SetInt(parsed)
			}
		default:
			// Unsupported field kinds are skipped rather than failing startup.
		}
	}

	return nil
}

// LocalEnvConfig marks that local environment bootstrapping ran.
type LocalEnvConfig struct {
	Initialized bool
}

var (
	localEnvConfig     *LocalEnvConfig
	localEnvConfigOnce sync.Once
)

// InitLocalEnvConfig prints the service version and environment banner once.
// Intended for local development entrypoints.
func InitLocalEnvConfig() *LocalEnvConfig {
	localEnvConfigOnce.Do(func() {
		localEnvConfig = &LocalEnvConfig{Initialized: true}

		fmt.Printf("VERSION: %s\n\n", GetenvOrDefault("VERSION", "NO-VERSION"))
		fmt.Printf("ENVIRONMENT NAME: %s\n\n", GetenvOrDefault("ENV_NAME", "development"))
	})

	return localEnvConfig
}
