package correlation

import (
	"strconv"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// attributeFloat coerces an attribute value to float64. JSON decoding
// produces float64 for numbers, but sources also ship numeric strings.
func attributeFloat(event *models.NormalizedEvent, key string) (float64, bool) {
	value, ok := event.Attributes[key]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// attributeBool coerces an attribute value to bool.
func attributeBool(event *models.NormalizedEvent, key string) (bool, bool) {
	value, ok := event.Attributes[key]
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

// attributeString coerces an attribute value to string.
func attributeString(event *models.NormalizedEvent, key string) (string, bool) {
	value, ok := event.Attributes[key]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// meetsThreshold compares a value against a threshold with the closed
// operator set. Unknown operators never match.
func meetsThreshold(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	default:
		return false
	}
}

// signedState inspects the "unsigned"/"signed" attribute pair. Sources
// disagree on which flag they ship; when both are present and contradict
// each other the evidence is conflicting and the caller must not match.
func signedState(event *models.NormalizedEvent) (unsigned bool, conflict bool, present bool) {
	unsignedVal, hasUnsigned := attributeBool(event, "unsigned")
	signedVal, hasSigned := attributeBool(event, "signed")

	if hasUnsigned && hasSigned && unsignedVal == signedVal {
		return false, true, true
	}
	if hasUnsigned {
		return unsignedVal, false, true
	}
	if hasSigned {
		return !signedVal, false, true
	}
	return false, false, false
}
