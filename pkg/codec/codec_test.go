package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func TestEncode(t *testing.T) {
	t.Run("nil encodes to stored null for every type", func(t *testing.T) {
		for _, attrType := range []models.AttributeType{
			models.AttributeTypeString,
			models.AttributeTypeInt,
			models.AttributeTypeFloat,
			models.AttributeTypeBoolean,
			models.AttributeTypeDatetime,
			models.AttributeTypeDate,
		} {
			assert.Nil(t, Encode(nil, attrType), string(attrType))
		}
	})

	t.Run("booleans", func(t *testing.T) {
		encoded := Encode(true, models.AttributeTypeBoolean)
		require.NotNil(t, encoded)
		assert.Equal(t, "true", *encoded)

		encoded = Encode(false, models.AttributeTypeBoolean)
		require.NotNil(t, encoded)
		assert.Equal(t, "false", *encoded)
	})

	t.Run("non-bool values under boolean type collapse to empty string", func(t *testing.T) {
		encoded := Encode("yes", models.AttributeTypeBoolean)
		require.NotNil(t, encoded)
		assert.Equal(t, "", *encoded)

		encoded = Encode(float64(1), models.AttributeTypeBoolean)
		require.NotNil(t, encoded)
		assert.Equal(t, "", *encoded)
	})

	t.Run("numbers interpolate", func(t *testing.T) {
		encoded := Encode(float64(42), models.AttributeTypeInt)
		require.NotNil(t, encoded)
		assert.Equal(t, "42", *encoded)

		encoded = Encode(3.25, models.AttributeTypeFloat)
		require.NotNil(t, encoded)
		assert.Equal(t, "3.25", *encoded)
	})

	t.Run("strings pass through", func(t *testing.T) {
		encoded := Encode("hello", models.AttributeTypeString)
		require.NotNil(t, encoded)
		assert.Equal(t, "hello", *encoded)
	})
}

func TestDecode(t *testing.T) {
	t.Run("nil decodes to nil", func(t *testing.T) {
		assert.Nil(t, Decode(nil, models.AttributeTypeString))
		assert.Nil(t, Decode(nil, models.AttributeTypeInt))
	})

	t.Run("int", func(t *testing.T) {
		assert.Equal(t, int64(42), Decode(strPtr("42"), models.AttributeTypeInt))
		assert.Equal(t, int64(7), Decode(strPtr("7.9"), models.AttributeTypeInt))
		assert.Nil(t, Decode(strPtr("not a number"), models.AttributeTypeInt))
	})

	t.Run("float", func(t *testing.T) {
		assert.Equal(t, 3.25, Decode(strPtr("3.25"), models.AttributeTypeFloat))
		assert.Nil(t, Decode(strPtr("nope"), models.AttributeTypeFloat))
	})

	t.Run("boolean", func(t *testing.T) {
		assert.Equal(t, true, Decode(strPtr("true"), models.AttributeTypeBoolean))
		assert.Equal(t, false, Decode(strPtr("false"), models.AttributeTypeBoolean))
		assert.Nil(t, Decode(strPtr(""), models.AttributeTypeBoolean))
	})

	t.Run("string and date types pass through", func(t *testing.T) {
		assert.Equal(t, "hello", Decode(strPtr("hello"), models.AttributeTypeString))
		assert.Equal(t, "2024-01-01", Decode(strPtr("2024-01-01"), models.AttributeTypeDate))
		assert.Equal(t, "2024-01-01T10:00:00Z", Decode(strPtr("2024-01-01T10:00:00Z"), models.AttributeTypeDatetime))
	})

	t.Run("stale values under a changed type decode to nil", func(t *testing.T) {
		// written while the attribute was a string, read back as int
		assert.Nil(t, Decode(strPtr("hello"), models.AttributeTypeInt))
	})
}
