package inbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reBlankLines = regexp.MustCompile(`\n{3,}`)
	reHTMLTag    = regexp.MustCompile(`(?i)<(html|body|div|p|br|table|span|a|font|head)[\s/>]`)

	// Lines that start a signature or sign-off; everything after is dropped
	signatureMarkers = regexp.MustCompile(`\n--\n|\nRegards,|\nBest,|\nThanks,`)
)

// Normalize lowercases text, trims it and collapses whitespace runs to one space.
// Unicode spaces such as NBSP count as whitespace.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// CleanBody removes the signature block and redundant blank lines from an email body
func CleanBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = reBlankLines.ReplaceAllString(body, "\n\n")
	if loc := signatureMarkers.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body)
}

// StripHTML converts an HTML body to plain text
func StripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return stripTags(html)
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br, p, div, tr, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	text := doc.Text()
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// stripTags is the regex fallback used when the HTML cannot be parsed
func stripTags(html string) string {
	reScript := regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	html = reScript.ReplaceAllString(html, "")
	reStyle := regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	html = reStyle.ReplaceAllString(html, "")

	reTags := regexp.MustCompile(`<[^>]+>`)
	html = reTags.ReplaceAllString(html, " ")

	html = strings.ReplaceAll(html, "&nbsp;", " ")
	html = strings.ReplaceAll(html, "&amp;", "&")
	html = strings.ReplaceAll(html, "&lt;", "<")
	html = strings.ReplaceAll(html, "&gt;", ">")
	html = strings.ReplaceAll(html, "&quot;", "\"")

	return strings.Join(strings.Fields(html), " ")
}

func looksLikeHTML(s string) bool {
	return reHTMLTag.MatchString(s)
}
