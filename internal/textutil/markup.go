package textutil

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var blockBreaks = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"<BR>", "\n", "<BR/>", "\n", "<BR />", "\n",
	"</p>", "</p>\n", "</P>", "</P>\n",
	"</div>", "</div>\n", "</tr>", "</tr>\n",
)

// StripMarkup returns the visible text of an HTML fragment. Plain text is
// returned unchanged apart from entity decoding.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blockBreaks.Replace(s)))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return doc.Text()
}

// MaybeDecodeBase64 decodes s when it is a standard base64 payload carrying
// UTF-8 text; anything else is returned as is.
func MaybeDecodeBase64(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 16 || len(trimmed)%4 != 0 || strings.ContainsAny(trimmed, " \n\t") {
		return s
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil || !utf8.Valid(decoded) {
		return s
	}
	return string(decoded)
}

// CleanText turns a raw publication body into readable single-spaced text.
// Paragraph breaks survive as single newlines.
func CleanText(raw string) string {
	text := StripMarkup(MaybeDecodeBase64(raw))
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = CollapseSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
