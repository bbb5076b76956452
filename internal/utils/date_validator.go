package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type DateFormat string

const (
	FormatISO8601Date  DateFormat = "2006-01-02"
	FormatRFC3339      DateFormat = time.RFC3339
	FormatSlashISO     DateFormat = "2006/01/02"
	FormatEuropeanDate DateFormat = "02/01/2006"
	FormatDotDate      DateFormat = "02.01.2006"
	FormatPassport     DateFormat = "02 Jan 2006"
	FormatMonthDay     DateFormat = "January 2, 2006"
)

var dayMonthYear = regexp.MustCompile(`^(\d{1,2})[/.](\d{1,2})[/.](\d{4})$`)

// DateValidator reads the dates travelers type into passport and travel
// forms. Every accepted value is normalized to midnight UTC.
type DateValidator struct {
	supportedFormats []DateFormat
	standardFormat   DateFormat
}

type ValidationResult struct {
	IsValid        bool
	DetectedFormat DateFormat
	ParsedTime     time.Time
	StandardFormat string
	OriginalValue  string
}

func NewDateValidator() *DateValidator {
	return &DateValidator{
		supportedFormats: []DateFormat{
			FormatISO8601Date,
			FormatRFC3339,
			FormatSlashISO,
			FormatEuropeanDate,
			FormatDotDate,
			FormatPassport,
			FormatMonthDay,
		},
		standardFormat: FormatISO8601Date,
	}
}

func (dv *DateValidator) ValidateAndConvert(input string) ValidationResult {
	result := ValidationResult{OriginalValue: input}

	input = strings.TrimSpace(input)
	if input == "" {
		return result
	}

	for _, format := range dv.supportedFormats {
		parsed, err := time.Parse(string(format), input)
		if err != nil || !dv.isValidForFormat(input, format) {
			continue
		}

		parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		result.IsValid = true
		result.DetectedFormat = format
		result.ParsedTime = parsed
		result.StandardFormat = parsed.Format(string(dv.standardFormat))
		return result
	}

	return result
}

// Day-first numeric formats only; month-first input is never guessed.
func (dv *DateValidator) isValidForFormat(input string, format DateFormat) bool {
	switch format {
	case FormatEuropeanDate, FormatDotDate:
		matches := dayMonthYear.FindStringSubmatch(input)
		if len(matches) < 4 {
			return false
		}
		day, _ := strconv.Atoi(matches[1])
		month, _ := strconv.Atoi(matches[2])
		return month >= 1 && month <= 12 && day >= 1 && day <= 31
	default:
		return true
	}
}

// ParseDate converts an optional form value. Empty input yields nil.
func (dv *DateValidator) ParseDate(field, input string) (*time.Time, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}

	result := dv.ValidateAndConvert(input)
	if !result.IsValid {
		return nil, fmt.Errorf("%s: unrecognized date %q", field, input)
	}
	return &result.ParsedTime, nil
}

func (dv *DateValidator) GetSupportedFormats() []DateFormat {
	return dv.supportedFormats
}
