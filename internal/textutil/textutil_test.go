package textutil

import (
	"encoding/base64"
	"math"
	"testing"
)

func TestFoldRemovesDiacriticsAndCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"INTIMAÇÃO  da   parte", "intimacao da parte"},
		{"Decisão\n\tinterlocutória", "decisao interlocutoria"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Fold(tt.in); got != tt.want {
			t.Errorf("Fold(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("ação", 2); got != "aç" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("Truncate short = %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("Truncate zero = %q", got)
	}
}

func TestCleanTextStripsMarkup(t *testing.T) {
	raw := "<p>Fica a parte <b>intimada</b>&nbsp;para   manifestação.</p><p>Prazo: 15 dias</p>"
	got := CleanText(raw)
	want := "Fica a parte intimada para manifestação.\nPrazo: 15 dias"
	if got != want {
		t.Fatalf("CleanText = %q, want %q", got, want)
	}
}

func TestCleanTextDecodesBase64Payload(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("<p>Cite-se o réu.</p>"))
	if got := CleanText(encoded); got != "Cite-se o réu." {
		t.Fatalf("CleanText(base64) = %q", got)
	}
	if got := CleanText("Despacho simples"); got != "Despacho simples" {
		t.Fatalf("CleanText(plain) = %q", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := NewFingerprint("Fica intimada a parte autora para manifestação")
	b := NewFingerprint("FICA INTIMADA A PARTE AUTORA PARA MANIFESTACAO")
	if got := CosineSimilarity(a, b); math.Abs(got-1) > 1e-9 {
		t.Fatalf("expected identical folded fingerprints, got %v", got)
	}
	c := NewFingerprint("julgo procedente o pedido")
	if got := CosineSimilarity(a, c); got != 0 {
		t.Fatalf("expected no overlap, got %v", got)
	}
	if got := CosineSimilarity(nil, a); got != 0 {
		t.Fatalf("expected 0 for nil, got %v", got)
	}
}
