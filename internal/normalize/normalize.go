// Package normalize turns raw provider observations into clean (date, value)
// points. Providers report periods at different granularities; everything is
// collapsed to the first day of the period.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"series_fetcher/internal/domain"
)

var (
	quarterRe = regexp.MustCompile(`^(\d{4})-?Q([1-4])$`)
	monthRe   = regexp.MustCompile(`^(\d{4})-M(\d{1,2})$`)
	yearRe    = regexp.MustCompile(`^\d{4}$`)
	yearMonRe = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
)

// fallbackLayouts are tried in order when no period grammar matches.
var fallbackLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

// hintLayouts maps user-facing format names to time layouts.
var hintLayouts = map[string]string{
	"Y-m-d": "2006-01-02",
	"m/d/Y": "01/02/2006",
	"d/m/Y": "02/01/2006",
}

// ParseDate parses a raw period string into the first day of that period.
// hint narrows the grammar tried first: a granularity name (monthly,
// quarterly, yearly) or an explicit format (Y-m-d, m/d/Y, d/m/Y, Y-m, Y).
func ParseDate(raw, hint string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	switch hint {
	case "yearly", "Y":
		if yearRe.MatchString(raw) {
			return parseYear(raw)
		}
	case "quarterly":
		if m := quarterRe.FindStringSubmatch(raw); m != nil {
			return parseQuarter(m)
		}
	case "monthly", "Y-m":
		if m := yearMonRe.FindStringSubmatch(raw); m != nil {
			return parseYearMonth(m)
		}
		if m := monthRe.FindStringSubmatch(raw); m != nil {
			return parseYearMonth(m)
		}
	default:
		if layout, ok := hintLayouts[hint]; ok {
			if t, err := time.Parse(layout, raw); err == nil {
				return midnight(t), true
			}
		}
	}

	if m := quarterRe.FindStringSubmatch(raw); m != nil {
		return parseQuarter(m)
	}
	if m := monthRe.FindStringSubmatch(raw); m != nil {
		return parseYearMonth(m)
	}
	if yearRe.MatchString(raw) {
		return parseYear(raw)
	}
	if m := yearMonRe.FindStringSubmatch(raw); m != nil {
		return parseYearMonth(m)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return midnight(t), true
		}
	}

	return time.Time{}, false
}

func parseYear(raw string) (time.Time, bool) {
	year, err := strconv.Atoi(raw)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
}

func parseQuarter(m []string) (time.Time, bool) {
	year, _ := strconv.Atoi(m[1])
	quarter, _ := strconv.Atoi(m[2])
	month := time.Month((quarter-1)*3 + 1)
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), true
}

func parseYearMonth(m []string) (time.Time, bool) {
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var valueStripper = strings.NewReplacer(",", "", " ", "", "$", "", "%", "", "€", "", "£", "")

// ParseValue parses a raw numeric string. Empty strings and provider
// missing-value sentinels fail; currency and grouping characters are
// stripped first.
func ParseValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "", raw == ".", raw == "-":
		return 0, false
	case strings.EqualFold(raw, "null"), strings.EqualFold(raw, "na"), strings.EqualFold(raw, "nan"):
		return 0, false
	}

	cleaned := valueStripper.Replace(raw)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Points validates raw observations, drops the unparsable ones, dedupes by
// date keeping the last occurrence, and returns the result sorted ascending.
func Points(raw []domain.RawPoint, hint string) []domain.Point {
	byDate := make(map[string]domain.Point, len(raw))
	for _, rp := range raw {
		date, ok := ParseDate(rp.Date, hint)
		if !ok {
			continue
		}
		value, ok := ParseValue(rp.Value)
		if !ok {
			continue
		}
		byDate[date.Format("2006-01-02")] = domain.Point{Date: date, Value: value}
	}

	points := make([]domain.Point, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points
}
