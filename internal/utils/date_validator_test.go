package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateValidator_ValidateAndConvert(t *testing.T) {
	dv := NewDateValidator()

	tests := []struct {
		input    string
		valid    bool
		format   DateFormat
		standard string
	}{
		{"2026-11-03", true, FormatISO8601Date, "2026-11-03"},
		{"2026-11-03T22:15:00+07:00", true, FormatRFC3339, "2026-11-03"},
		{"2026/11/03", true, FormatSlashISO, "2026-11-03"},
		{"03/11/2026", true, FormatEuropeanDate, "2026-11-03"},
		{"03.11.2026", true, FormatDotDate, "2026-11-03"},
		{"03 Nov 2026", true, FormatPassport, "2026-11-03"},
		{"November 3, 2026", true, FormatMonthDay, "2026-11-03"},
		{"11/30/2026", false, "", ""},
		{"", false, "", ""},
		{"tomorrow", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := dv.ValidateAndConvert(tt.input)
			assert.Equal(t, tt.valid, result.IsValid)
			assert.Equal(t, tt.format, result.DetectedFormat)
			assert.Equal(t, tt.standard, result.StandardFormat)
			if tt.valid {
				assert.Equal(t, time.UTC, result.ParsedTime.Location())
				assert.Zero(t, result.ParsedTime.Hour())
			}
		})
	}
}

func TestDateValidator_ParseDate(t *testing.T) {
	dv := NewDateValidator()

	parsed, err := dv.ParseDate("arrivalDate", "")
	require.NoError(t, err)
	assert.Nil(t, parsed)

	parsed, err = dv.ParseDate("arrivalDate", "2026-11-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC), *parsed)

	_, err = dv.ParseDate("arrivalDate", "31/31/2026")
	assert.ErrorContains(t, err, "arrivalDate")
}
