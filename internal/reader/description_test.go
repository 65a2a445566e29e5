package reader

import (
	"strings"
	"testing"
)

func TestExtractDescriptionPlainText(t *testing.T) {
	t.Parallel()

	got := ExtractDescription("  A compact   wireless mouse.\n\nBattery included. ", "https://example.com/widget")
	if !strings.Contains(got, "A compact wireless mouse.") {
		t.Fatalf("ExtractDescription() = %q", got)
	}
	if strings.Contains(got, "  ") {
		t.Fatalf("ExtractDescription() kept doubled spaces: %q", got)
	}
}

func TestExtractDescriptionHTMLFragment(t *testing.T) {
	t.Parallel()

	html := `<div class="product-desc">
		<h2>Overview</h2>
		<p>A compact wireless mouse with a 12-month battery.</p>
		<p>Works on glass surfaces.</p>
	</div>`

	got := ExtractDescription(html, "https://example.com/widget")
	if !strings.Contains(got, "A compact wireless mouse with a 12-month battery.") {
		t.Fatalf("ExtractDescription() = %q", got)
	}
	if strings.Contains(got, "<p>") || strings.Contains(got, "<div") {
		t.Fatalf("ExtractDescription() leaked markup: %q", got)
	}
}

func TestExtractDescriptionInvalidProductURL(t *testing.T) {
	t.Parallel()

	got := ExtractDescription("<p>Still extracted.</p>", "::not a url::")
	if !strings.Contains(got, "Still extracted.") {
		t.Fatalf("ExtractDescription() = %q", got)
	}
}

func TestExtractDescriptionEmpty(t *testing.T) {
	t.Parallel()

	if got := ExtractDescription("   ", "https://example.com"); got != "" {
		t.Fatalf("ExtractDescription(blank) = %q, want empty", got)
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	got := CleanText("line one  \r\n\r\n  line\ttwo\r")
	want := "line one\n\nline two"
	if got != want {
		t.Fatalf("CleanText() = %q, want %q", got, want)
	}
}
