package opentelemetry

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"regexp"

	cn "github.com/LerianStudio/redemption-gateway/redemption/constants"
	"github.com/LerianStudio/redemption-gateway/redemption/security"
)

// RedactionAction selects what happens to a matched field value.
type RedactionAction string

const (
	// RedactionMask replaces the value with the redactor's mask value.
	RedactionMask RedactionAction = "mask"
	// RedactionHash replaces the value with a deterministic sha256 digest,
	// keeping correlation possible without exposing the raw value.
	RedactionHash RedactionAction = "hash"
	// RedactionDrop removes the field entirely.
	RedactionDrop RedactionAction = "drop"
)

// RedactionRule matches fields by name and optionally by their dotted path
// inside a payload. An empty FieldPattern falls back to the shared sensitive
// field list, so a path-only rule still requires the field itself to be
// sensitive. An empty Action defaults to RedactionMask.
type RedactionRule struct {
	FieldPattern string
	PathPattern  string
	Action       RedactionAction
}

type compiledRule struct {
	Action     RedactionAction
	fieldRegex *regexp.Regexp
	pathRegex  *regexp.Regexp
}

// Redactor applies redaction rules to payloads and span attributes. A nil
// *Redactor is valid and redacts nothing.
type Redactor struct {
	rules     []compiledRule
	maskValue string
}

// NewRedactor compiles the given rules. An empty maskValue falls back to the
// standard obfuscation placeholder.
func NewRedactor(rules []RedactionRule, maskValue string) (*Redactor, error) {
	if maskValue == "" {
		maskValue = cn.ObfuscatedValue
	}

	compiled := make([]compiledRule, 0, len(rules))

	for i, rule := range rules {
		cr := compiledRule{Action: rule.Action}
		if cr.Action == "" {
			cr.Action = RedactionMask
		}

		if rule.FieldPattern != "" {
			re, err := regexp.Compile(rule.FieldPattern)
			if err != nil {
				return nil, fmt.Errorf("invalid redaction field pattern at index %d: %w", i, err)
			}

			cr.fieldRegex = re
		}

		if rule.PathPattern != "" {
			re, err := regexp.Compile(rule.PathPattern)
			if err != nil {
				return nil, fmt.Errorf("invalid redaction path pattern at index %d: %w", i, err)
			}

			cr.pathRegex = re
		}

		compiled = append(compiled, cr)
	}

	return &Redactor{rules: compiled, maskValue: maskValue}, nil
}

// NewDefaultRedactor masks every field the security package considers
// sensitive, at any path. The single catch-all rule keeps the security
// package's word-boundary matching, so "db_password_hash" and "replicaDSN"
// are caught the same way the HTTP log redaction catches them.
func NewDefaultRedactor() *Redactor {
	return &Redactor{
		rules:     []compiledRule{{Action: RedactionMask}},
		maskValue: cn.ObfuscatedValue,
	}
}

// actionFor returns the action of the first matching rule. Rules without a
// field pattern delegate the field check to security.IsSensitiveField; rules
// without a path pattern match any path.
func (r *Redactor) actionFor(path, field string) (RedactionAction, bool) {
	if r == nil {
		return "", false
	}

	for _, rule := range r.rules {
		var fieldMatch bool
		if rule.fieldRegex != nil {
			fieldMatch = rule.fieldRegex.MatchString(field)
		} else {
			fieldMatch = security.IsSensitiveField(field)
		}

		if !fieldMatch {
			continue
		}

		if rule.pathRegex != nil && !rule.pathRegex.MatchString(path) {
			continue
		}

		return rule.Action, true
	}

	return "", false
}

// redactValue applies the matching rule to a single value. The second return
// is true when the field must be dropped.
func (r *Redactor) redactValue(path, field string, value any) (any, bool) {
	action, matched := r.actionFor(path, field)
	if !matched {
		return value, false
	}

	switch action {
	case RedactionDrop:
		return nil, true
	case RedactionHash:
		return hashString(stringifyValue(value)), false
	default:
		return r.maskValue, false
	}
}

// hashString produces the deterministic digest used by RedactionHash.
func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))

	return fmt.Sprintf("sha256:%x", sum)
}

func stringifyValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

// obfuscateStructFields walks decoded JSON data, building dotted paths as it
// descends. Array elements share their parent's path, so a rule written for
// "accounts.password" also covers every element of an accounts array.
func obfuscateStructFields(value any, path string, r *Redactor) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))

		for key, item := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}

			if action, matched := r.actionFor(childPath, key); matched {
				switch action {
				case RedactionDrop:
				case RedactionHash:
					result[key] = hashString(stringifyValue(item))
				default:
					result[key] = r.maskValue
				}

				continue
			}

			result[key] = obfuscateStructFields(item, childPath, r)
		}

		return result

	case []any:
		result := make([]any, len(v))

		for i, item := range v {
			result[i] = obfuscateStructFields(item, path, r)
		}

		return result

	default:
		return value
	}
}

// ObfuscateStruct round-trips a value through JSON and applies the redactor
// to the decoded form. Numbers survive as json.Number so they re-marshal
// without float drift. A nil redactor returns the input unchanged.
func ObfuscateStruct(value any, r *Redactor) (any, error) {
	if value == nil || r == nil {
		return value, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}

	return obfuscateStructFields(data, "", r), nil
}
