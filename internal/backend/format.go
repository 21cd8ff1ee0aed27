package backend

import (
	"regexp"
	"strings"
	"time"

	"farmacia/client/internal/textutil"
)

var numberPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// CleanNumeric keeps the first number of a dosage-like value, accepting a
// decimal comma: "2,5 mg" -> "2.5". Values without digits come back unchanged.
func CleanNumeric(value string) string {
	if value == "" {
		return ""
	}
	normalized := strings.Replace(value, ",", ".", 1)
	if match := numberPattern.FindString(normalized); match != "" {
		return match
	}
	return value
}

// NormalizeTarja maps free text to the backend's Tarja values.
func NormalizeTarja(raw string) string {
	s := textutil.Fold(raw)
	switch {
	case strings.Contains(s, "vermel"):
		return "Vermelha"
	case strings.Contains(s, "preta"):
		return "Preta"
	case strings.Contains(s, "amarel"):
		return "Amarela"
	}
	return "Sem_tarja"
}

var viaRules = []struct {
	fragment string
	value    string
}{
	{"intramus", "Intramuscular"},
	{"intraven", "Intravenosa"},
	{"subcut", "Subcutanea"},
	{"topic", "Topica"},
	{"inal", "Inalatoria"},
	{"nasal", "Nasal"},
	{"oftalm", "Oftalmica"},
	{"otolog", "Otologica"},
	{"retal", "Retal"},
}

// NormalizeVia maps free text to the backend's ViaConsumo values; anything
// unrecognised is "Oral".
func NormalizeVia(raw string) string {
	s := textutil.Fold(raw)
	for _, rule := range viaRules {
		if strings.Contains(s, rule.fragment) {
			return rule.value
		}
	}
	return "Oral"
}

// Tarjas and Vias list the accepted values in form order.
var (
	Tarjas = []string{"Sem_tarja", "Amarela", "Vermelha", "Preta"}
	Vias   = []string{"Oral", "Intravenosa", "Intramuscular", "Subcutanea", "Topica", "Inalatoria", "Nasal", "Oftalmica", "Otologica", "Retal"}
	Tipos  = []string{"Analgesico", "Antibiotico", "Anti_inflamatorio", "Antidepressivo", "Antialergico", "Antihipertensivo", "Diabetes", "Cardiovascular", "Gastrointestinal", "Respiratorio", "Hormonal", "Vitaminas", "Outros"}
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseDate accepts the date shapes the backend and the forms produce.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date as dd/mm/yyyy. Empty input yields "-" and
// unparseable input is returned as is.
func FormatDate(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	t, ok := ParseDate(value)
	if !ok {
		return value
	}
	return t.Format("02/01/2006")
}

// DateOnly cuts a timestamp down to its YYYY-MM-DD part.
func DateOnly(value string) string {
	value = strings.TrimSpace(value)
	if i := strings.IndexByte(value, 'T'); i >= 0 {
		return value[:i]
	}
	if t, ok := ParseDate(value); ok {
		return t.Format("2006-01-02")
	}
	return value
}

// isoTimestamp turns a YYYY-MM-DD date into the midnight UTC timestamp the
// backend stores; other values pass through.
func isoTimestamp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", DateOnly(value))
	if err != nil {
		return value
	}
	return t.UTC().Format(time.RFC3339)
}
