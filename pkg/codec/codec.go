// Package codec converts attribute values between their JSON form and the
// string encoding stored in the attribute operation log.
package codec

import (
	"fmt"
	"strconv"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Encode converts a raw attribute value to its stored string form. A nil
// input always encodes to a stored null, regardless of declared type.
// Booleans encode to "true"/"false", with anything that is not strictly a
// bool collapsing to the empty string. Every other type is interpolated.
// Encoding is total; it never fails.
func Encode(value any, attrType models.AttributeType) *string {
	if value == nil {
		return nil
	}

	var encoded string
	if attrType == models.AttributeTypeBoolean {
		switch value {
		case true:
			encoded = "true"
		case false:
			encoded = "false"
		default:
			encoded = ""
		}
	} else {
		encoded = fmt.Sprintf("%v", value)
	}

	return &encoded
}

// Decode converts a stored string back to a typed value using the attribute's
// currently declared type. Values that no longer parse under the declared
// type (the type may have changed after the operation was written) decode to
// nil rather than failing, so historical replay stays total.
func Decode(value *string, attrType models.AttributeType) any {
	if value == nil {
		return nil
	}

	switch attrType {
	case models.AttributeTypeInt:
		if n, err := strconv.ParseInt(*value, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(*value, 64); err == nil {
			return int64(f)
		}
		return nil
	case models.AttributeTypeFloat:
		if f, err := strconv.ParseFloat(*value, 64); err == nil {
			return f
		}
		return nil
	case models.AttributeTypeBoolean:
		switch *value {
		case "true":
			return true
		case "false":
			return false
		}
		return nil
	default:
		// string, datetime, and date values pass through unchanged
		return *value
	}
}
