package labels

import "testing"

func TestNormalizeKeyGroupsVariants(t *testing.T) {
	variants := []string{
		"Chancado Primario",
		"chancado primario",
		"CHANCADO  PRIMARIO",
		"  Chancado\tPrimario ",
		"Chancado Primário",
	}
	want := "chancado primario"
	for _, v := range variants {
		if got := NormalizeKey(v); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestNormalizeKeyDiacritics(t *testing.T) {
	cases := map[string]string{
		"Flotación":      "flotacion",
		"Molienda Única": "molienda unica",
		"ÁÉÍÓÚÑ":         "aeioun",
		"":               "",
		"   ":            "",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := map[string]string{
		"chancado primario": "Chancado Primario",
		"planta sx ew":      "Planta SX EW",
		"pozo 12":           "Pozo 12",
		"JUAN PEREZ":        "Juan Perez",
		"":                  "",
	}
	for in, want := range cases {
		if got := DisplayLabel(in); got != want {
			t.Errorf("DisplayLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDisplayLabelOpaqueID(t *testing.T) {
	id := "9f8a6c2e-1b3d-4a5f-9e0c-7d2b4f6a8c1e"
	got := DisplayLabel(id)
	if got != "usuario-9f8a6c2e" {
		t.Errorf("DisplayLabel(uuid) = %q", got)
	}
	// A real name of similar length must not be treated as opaque.
	if got := DisplayLabel("maria de los angeles rojas"); got != "Maria De Los Angeles Rojas" {
		t.Errorf("long name mangled: %q", got)
	}
}

func TestOpaqueID(t *testing.T) {
	if !OpaqueID("9f8a6c2e1b3d4a5f9e0c7d2b4f6a8c1e") {
		t.Error("hex id not detected")
	}
	if OpaqueID("juan.perez@example.com") {
		t.Error("email flagged as opaque")
	}
	if OpaqueID("abc123") {
		t.Error("short token flagged as opaque")
	}
}
