package textutil

import "testing"

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Tópica":       "topica",
		"INALATÓRIA":   "inalatoria",
		"Não iniciado": "nao iniciado",
		"":             "",
		"Ação çÇ":      "acao cc",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFoldKey(t *testing.T) {
	variants := []string{"Nome_paciente", "nomePaciente", "NOME-PACIENTE", "nome_paciente"}
	for _, v := range variants {
		if got := FoldKey(v); got != "nomepaciente" {
			t.Errorf("FoldKey(%q) = %q", v, got)
		}
	}
	if FoldKey("Via_Consumo") != FoldKey("viaConsumo") {
		t.Error("via consumo variants differ")
	}
}

func TestMatchAny(t *testing.T) {
	if !MatchAny("jose", "José da Silva", "123") {
		t.Error("accent-insensitive match failed")
	}
	if !MatchAny("  ", "anything") {
		t.Error("blank needle must match")
	}
	if MatchAny("maria", "José", "") {
		t.Error("unexpected match")
	}
}
