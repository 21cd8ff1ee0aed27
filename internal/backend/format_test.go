package backend

import "testing"

func TestCleanNumeric(t *testing.T) {
	cases := map[string]string{
		"500 mg":  "500",
		"2,5 ml":  "2.5",
		"0.75":    "0.75",
		"":        "",
		"gotas":   "gotas",
		"aprox 3": "3",
	}
	for in, want := range cases {
		if got := CleanNumeric(in); got != want {
			t.Errorf("CleanNumeric(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeTarja(t *testing.T) {
	cases := map[string]string{
		"Tarja Vermelha": "Vermelha",
		"preta":          "Preta",
		"AMARELA":        "Amarela",
		"Sem Tarja":      "Sem_tarja",
		"":               "Sem_tarja",
	}
	for in, want := range cases {
		if got := NormalizeTarja(in); got != want {
			t.Errorf("NormalizeTarja(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeVia(t *testing.T) {
	cases := map[string]string{
		"Intramuscular": "Intramuscular",
		"intravenosa":   "Intravenosa",
		"Subcutânea":    "Subcutanea",
		"Tópica":        "Topica",
		"Inalatória":    "Inalatoria",
		"nasal":         "Nasal",
		"Oftálmica":     "Oftalmica",
		"otológica":     "Otologica",
		"Retal":         "Retal",
		"comprimido":    "Oral",
		"":              "Oral",
	}
	for in, want := range cases {
		if got := NormalizeVia(in); got != want {
			t.Errorf("NormalizeVia(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDate(t *testing.T) {
	cases := map[string]string{
		"2025-03-10T00:00:00.000Z": "10/03/2025",
		"2025-03-10":               "10/03/2025",
		"":                         "-",
		"amanhã":                   "amanhã",
	}
	for in, want := range cases {
		if got := FormatDate(in); got != want {
			t.Errorf("FormatDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDateOnly(t *testing.T) {
	cases := map[string]string{
		"2025-03-10T12:30:00Z": "2025-03-10",
		"2025-03-10":           "2025-03-10",
		"10/03/2025":           "2025-03-10",
		"":                     "",
	}
	for in, want := range cases {
		if got := DateOnly(in); got != want {
			t.Errorf("DateOnly(%q) = %q, want %q", in, got, want)
		}
	}
	if got := isoTimestamp("1990-05-02"); got != "1990-05-02T00:00:00Z" {
		t.Errorf("isoTimestamp = %q", got)
	}
}
