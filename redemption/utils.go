package redemption

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry/metrics"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var uuidPathPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Contains checks if an item is in a slice. This function uses type parameters
// to work with any slice type.
func Contains[T comparable](slice []T, item T) bool {
	return slices.Contains(slice, item)
}

// CheckMetadataKeyAndValueLength validates every metadata key and stringified
// value against the given length limit.
func CheckMetadataKeyAndValueLength(limit int, metadata map[string]any) error {
	for k, v := range metadata {
		if len(k) > limit {
			return cn.ErrMetadataKeyLengthExceeded
		}

		var value string

		switch t := v.(type) {
		case nil:
			continue // nil values are valid, skip length check
		case int:
			value = strconv.Itoa(t)
		case float64:
			value = strconv.FormatFloat(t, 'f', -1, 64)
		case string:
			value = t
		case bool:
			value = strconv.FormatBool(t)
		default:
			value = fmt.Sprintf("%v", t)
		}

		if len(value) > limit {
			return cn.ErrMetadataValueLengthExceeded
		}
	}

	return nil
}

// IsUUID validates that the string parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)

	return err == nil
}

// ReplaceUUIDWithPlaceholder replaces every UUID segment in a path with the
// ":id" placeholder. Span names and metric labels use it to keep telemetry
// cardinality bounded.
func ReplaceUUIDWithPlaceholder(path string) string {
	return uuidPathPattern.ReplaceAllString(path, ":id")
}

// ValidateServerAddress returns the address when it is a parseable
// "host:port" pair, or the empty string otherwise.
func ValidateServerAddress(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil || strings.TrimSpace(port) == "" {
		return ""
	}

	_ = host // empty host binds every interface, which is valid

	return address
}

// GenerateUUIDv7 generates a new time-ordered UUID v7.
// Returns an error if crypto/rand fails.
func GenerateUUIDv7() (uuid.UUID, error) {
	return uuid.NewV7()
}

// StructToJSONString converts a struct to its JSON string representation.
func StructToJSONString(s any) (string, error) {
	jsonByte, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("struct to JSON: %w", err)
	}

	return string(jsonByte), nil
}

// MergeMaps merges source into target following JSON Merge Patch semantics:
// non-nil values overwrite, nil values delete. If target is nil, a new map
// is created.
func MergeMaps(source, target map[string]any) map[string]any {
	if target == nil {
		target = make(map[string]any)
	}

	for key, value := range source {
		if value != nil {
			target[key] = value
		} else {
			delete(target, key)
		}
	}

	return target
}

// GetCPUUsage reads the current CPU usage and records it through the
// MetricsFactory gauge.
func GetCPUUsage(ctx context.Context, factory *metrics.MetricsFactory) {
	logger := NewLoggerFromContext(ctx)

	out, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		logger.Log(ctx, log.LevelWarn, "error getting CPU usage", log.Err(err))
	}

	var percentageCPU int64
	if len(out) > 0 {
		percentageCPU = int64(out[0])
	}

	if err := factory.RecordSystemCPUUsage(ctx, percentageCPU); err != nil {
		logger.Log(ctx, log.LevelWarn, "error recording CPU gauge", log.Err(err))
	}
}

// GetMemUsage reads the current memory usage and records it through the
// MetricsFactory gauge.
func GetMemUsage(ctx context.Context, factory *metrics.MetricsFactory) {
	logger := NewLoggerFromContext(ctx)

	var percentageMem int64

	out, err := mem.VirtualMemory()
	if err != nil {
		logger.Log(ctx, log.LevelWarn, "error getting memory info", log.Err(err))
	} else {
		percentageMem = int64(out.UsedPercent)
	}

	if err := factory.RecordSystemMemUsage(ctx, percentageMem); err != nil {
		logger.Log(ctx, log.LevelWarn, "error recording memory gauge", log.Err(err))
	}
}
