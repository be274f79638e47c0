package htmlutil

import (
	"testing"
)

const page = `<!DOCTYPE html>
<html lang="fr-CA">
<head>
  <title>  Bonjour   le monde </title>
  <style>body { color: red; }</style>
  <script>var greeting = "hello";</script>
</head>
<body>
  <h1>Bienvenue</h1>
  <p>Le renard brun<br>saute.</p>
  <noscript>Activez JavaScript</noscript>
  <div hidden>caché</div>
  <span aria-hidden="true">×</span>
  <!-- commentaire -->
  <ul><li>un</li><li>deux</li></ul>
</body>
</html>`

func TestVisibleText(t *testing.T) {
	doc, err := LoadHTMLString(page)
	if err != nil {
		t.Fatal(err)
	}
	got := VisibleText(doc)
	want := "Bienvenue Le renard brun saute. un deux"
	if got != want {
		t.Errorf("VisibleText = %q, want %q", got, want)
	}
}

func TestVisibleTextFragment(t *testing.T) {
	doc, err := LoadHTMLString("<p>Hola <b>mundo</b></p><script>x()</script>")
	if err != nil {
		t.Fatal(err)
	}
	if got := VisibleText(doc); got != "Hola mundo" {
		t.Errorf("VisibleText = %q", got)
	}
}

func TestDeclaredLanguage(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{page, "fr"},
		{`<html lang="EN"><body>x</body></html>`, "en"},
		{`<html lang="bg_BG"><body>x</body></html>`, "bg"},
		{`<html><body>x</body></html>`, ""},
	}
	for _, tt := range tests {
		doc, err := LoadHTMLString(tt.html)
		if err != nil {
			t.Fatal(err)
		}
		if got := DeclaredLanguage(doc); got != tt.want {
			t.Errorf("DeclaredLanguage = %q, want %q", got, tt.want)
		}
	}
}

func TestTitle(t *testing.T) {
	doc, err := LoadHTMLString(page)
	if err != nil {
		t.Fatal(err)
	}
	if got := Title(doc); got != "Bonjour le monde" {
		t.Errorf("Title = %q", got)
	}
}

func TestLooksLikeHTML(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{page, true},
		{"<html><body>hi</body></html>", true},
		{"  <div>Hallo Welt</div>", true},
		{"<p>Hola</p>", true},
		{"Hello world", false},
		{"a < b and c > d", false},
		{"<3 you", false},
	}
	for _, tt := range tests {
		if got := LooksLikeHTML(tt.in); got != tt.want {
			t.Errorf("LooksLikeHTML(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultRenderOptions(t *testing.T) {
	opts := DefaultRenderOptions()
	if opts.Timeout <= 0 || opts.Wait < 0 {
		t.Errorf("unexpected defaults %+v", opts)
	}
}
