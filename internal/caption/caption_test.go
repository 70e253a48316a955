package caption_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgard/postqueue/internal/caption"
)

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only whitespace",
			input:    " \n\t \n ",
			expected: "",
		},
		{
			name:     "price line with many blank lines",
			input:    "Цена - 4250\n\n\n\nfoo",
			expected: "Цена - 4250\n\nfoo",
		},
		{
			name:     "single blank line kept",
			input:    "a\n\nb",
			expected: "a\n\nb",
		},
		{
			name:     "windows line endings",
			input:    "line one\r\n\r\n\r\n\r\nline two\r\n",
			expected: "line one\n\nline two",
		},
		{
			name:     "spaces tabs and nbsp collapse",
			input:    "  Size:\t\tXL    red  ",
			expected: "Size: XL red",
		},
		{
			name:     "blank lines made of spaces",
			input:    "top\n   \n \t \n  \nbottom",
			expected: "top\n\nbottom",
		},
		{
			name:     "decomposed characters are composed",
			input:    "e\u0301te\u0301",
			expected: "\u00e9t\u00e9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, caption.Clean(tt.input))
		})
	}
}

func TestNormalizer_Footer(t *testing.T) {
	t.Parallel()

	footer := caption.Footer{
		CatalogURL:   "https://t.me/addlist/catalog",
		CatalogLabel: "Catalog:",
		Contact:      "@shop_contact",
		ContactLabel: "Order:",
	}
	n := caption.New(footer)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "footer appended",
			input:    "Jacket\nЦена - 4250",
			expected: "Jacket\nЦена - 4250\n\nCatalog: https://t.me/addlist/catalog\nOrder: @shop_contact",
		},
		{
			name:     "contact already present",
			input:    "Jacket, write @shop_contact",
			expected: "Jacket, write @shop_contact\n\nCatalog: https://t.me/addlist/catalog",
		},
		{
			name:     "both already present",
			input:    "https://t.me/addlist/catalog @shop_contact",
			expected: "https://t.me/addlist/catalog @shop_contact",
		},
		{
			name:     "empty body gets footer only",
			input:    "   ",
			expected: "Catalog: https://t.me/addlist/catalog\nOrder: @shop_contact",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := n.Normalize(tt.input)
			assert.Equal(t, tt.expected, got)
			// Normalizing twice must not duplicate the footer.
			assert.Equal(t, got, n.Normalize(got))
		})
	}
}

func TestNormalizer_NoFooter(t *testing.T) {
	t.Parallel()

	n := caption.New(caption.Footer{})
	assert.Equal(t, "Цена - 4250\n\nfoo", n.Normalize("Цена - 4250\n\n\n\nfoo"))
	assert.Equal(t, "", n.Normalize(""))
}

func TestDetectPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{input: "Цена - 4250\n\nfoo", want: "4250", ok: true},
		{input: "Jacket\nцена: 4 250 ₽", want: "4250", ok: true},
		{input: "Price: 10000", want: "10000", ok: true},
		{input: "СТОИМОСТЬ 900", want: "900", ok: true},
		{input: "no price here", ok: false},
		{input: "best price ever", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := caption.DetectPrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExcerpt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", caption.Excerpt("short", 10))
	assert.Equal(t, "one two", caption.Excerpt("one\n\ntwo", 10))
	assert.Equal(t, "Цена…", caption.Excerpt("Цена - 4250", 5))
}
