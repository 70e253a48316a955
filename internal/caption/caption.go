// Package caption turns raw admin text into the canonical caption used for
// channel posts: Unicode-normalized, whitespace collapsed, at most one blank
// line between paragraphs, with the configured footer links appended once.
package caption

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}\x{2007}\x{202F}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)

	// priceLine matches lines such as "Цена - 4250", "цена: 4 250 ₽" or "Price: 10000".
	priceLine = regexp.MustCompile(`(?im)^\s*(?:цена|стоимость|price)\s*[-–—:=]?\s*(\d[\d \x{00A0}]*)`)
)

// Footer holds the fixed links appended to every caption. Empty values are skipped.
type Footer struct {
	CatalogURL   string
	CatalogLabel string
	Contact      string
	ContactLabel string
}

func (f Footer) lines(body string) []string {
	var out []string
	if f.CatalogURL != "" && !strings.Contains(body, f.CatalogURL) {
		out = append(out, joinLabel(f.CatalogLabel, f.CatalogURL))
	}
	if f.Contact != "" && !strings.Contains(body, f.Contact) {
		out = append(out, joinLabel(f.ContactLabel, f.Contact))
	}
	return out
}

func joinLabel(label, value string) string {
	if label == "" {
		return value
	}
	return label + " " + value
}

// Normalizer produces canonical captions. It is stateless and safe for concurrent use.
type Normalizer struct {
	footer Footer
}

// New returns a Normalizer that appends the given footer.
func New(footer Footer) *Normalizer {
	return &Normalizer{footer: footer}
}

// Normalize returns the canonical form of raw.
func (n *Normalizer) Normalize(raw string) string {
	body := Clean(raw)

	footer := n.footer.lines(body)
	if len(footer) == 0 {
		return body
	}
	if body == "" {
		return strings.Join(footer, "\n")
	}
	return body + "\n\n" + strings.Join(footer, "\n")
}

// Clean normalizes whitespace without adding the footer.
func Clean(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// DetectPrice returns the digits of the first price line in text.
func DetectPrice(text string) (string, bool) {
	m := priceLine.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m[1])
	if digits == "" {
		return "", false
	}
	return digits, true
}

// Excerpt shortens text to at most maxRunes runes on a single line.
func Excerpt(text string, maxRunes int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 1 {
		return "…"
	}
	return string(runes[:maxRunes-1]) + "…"
}
