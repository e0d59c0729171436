// Package wearable imports CSV exports of wearable thermometers.
//
// Each line holds a timestamp, a temperature and an optional HRV value in
// milliseconds:
//
//	2025-03-01T06:12:00+01:00;36,42;48
//	2025-03-01 06:42;36,40;
//
// Fields are separated by semicolons, tabs or commas. Semicolon and tab
// separated files may use decimal commas.
package wearable

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/claude/cyclesense/internal/models"
)

var (
	// headerRe matches a column header such as "timestamp;temperature;hrv_ms".
	headerRe = regexp.MustCompile(`(?i)^"?(time|timestamp|date)`)

	// unixRe matches a Unix timestamp in seconds.
	unixRe = regexp.MustCompile(`^\d{9,10}(\.\d+)?$`)
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
}

// Parse reads a wearable CSV export. Timestamps without a zone are read in
// loc. Blank, header and malformed lines are skipped and counted.
func Parse(r io.Reader, loc *time.Location) ([]models.WearableRecord, int, error) {
	if loc == nil {
		loc = time.UTC
	}
	scanner := bufio.NewScanner(r)
	var records []models.WearableRecord
	var skipped int

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if headerRe.MatchString(line) {
			continue
		}

		rec, err := parseLine(line, loc)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped, scanner.Err()
}

func parseLine(line string, loc *time.Location) (models.WearableRecord, error) {
	sep, european := detectSeparator(line)
	fields := strings.Split(line, sep)
	if len(fields) < 2 {
		return models.WearableRecord{}, fmt.Errorf("expected at least 2 fields, got %d", len(fields))
	}

	ts, err := parseTimestamp(unquote(fields[0]), loc)
	if err != nil {
		return models.WearableRecord{}, err
	}
	temp, err := parseNumber(unquote(fields[1]), european)
	if err != nil {
		return models.WearableRecord{}, fmt.Errorf("parsing temperature: %w", err)
	}

	rec := models.WearableRecord{Time: ts, TemperatureC: temp}
	if len(fields) > 2 {
		if s := unquote(fields[2]); s != "" {
			hrv, err := parseNumber(s, european)
			if err != nil {
				return models.WearableRecord{}, fmt.Errorf("parsing hrv: %w", err)
			}
			rec.HRVMs = &hrv
		}
	}
	return rec, nil
}

// detectSeparator picks the field separator and reports whether decimal
// commas are allowed.
func detectSeparator(line string) (string, bool) {
	switch {
	case strings.Contains(line, ";"):
		return ";", true
	case strings.Contains(line, "\t"):
		return "\t", true
	default:
		return ",", false
	}
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if unixRe.MatchString(s) {
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, err
		}
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", s)
}

// parseNumber converts a decimal string to float64. With european set,
// "36,42" -> 36.42.
func parseNumber(s string, european bool) (float64, error) {
	s = strings.TrimSpace(s)
	if european {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}
