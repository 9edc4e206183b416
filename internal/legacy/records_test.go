package legacy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstant_UnmarshalJSON(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	cases := map[string]string{
		"iso":          `"2024-03-01T10:00:00.000Z"`,
		"iso offset":   `"2024-03-01T12:00:00+02:00"`,
		"millis":       `1709287200000`,
		"millis float": `1709287200000.0`,
		"millis text":  `"1709287200000"`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			var i instant
			require.NoError(t, json.Unmarshal([]byte(input), &i))
			assert.True(t, want.Equal(i.Time), "got %s", i.Time)
		})
	}

	var i instant
	require.NoError(t, json.Unmarshal([]byte(`null`), &i))
	assert.True(t, i.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`"2024-03-02"`), &i))
	assert.Equal(t, 2, i.Day())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &i))
}
