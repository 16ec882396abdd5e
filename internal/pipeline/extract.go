package pipeline

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// maxTextChars caps the payload sent to the summarization model.
	maxTextChars = 8000

	untitledFallback = "Untitled Page"

	faviconServiceFmt = "https://www.google.com/s2/favicons?domain=%s&sz=64"

	skippedTags = "script, style, nav, footer, iframe, noscript"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

type Extraction struct {
	Text    string
	Title   string
	Favicon string // empty means no favicon could be derived
}

// Extract derives the visible text, a best-effort title and a best-effort
// favicon URL from raw HTML. Pure string work, no I/O. Text may come back
// empty; Title never does.
func Extract(html, sourceURL string) Extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// The underlying parser is error-tolerant; this only trips on
		// reader failures, which a strings.Reader cannot produce.
		return Extraction{Title: hostnameOrUntitled(sourceURL)}
	}

	// Title and favicon look at the intact document; visibleText prunes it.
	title := pageTitle(doc, sourceURL)
	favicon := faviconURL(doc, sourceURL)
	text := visibleText(doc)

	return Extraction{Text: text, Title: title, Favicon: favicon}
}

func visibleText(doc *goquery.Document) string {
	doc.Find(skippedTags).Remove()
	text := doc.Find("body").Text()
	text = strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
	runes := []rune(text)
	if len(runes) > maxTextChars {
		runes = runes[:maxTextChars]
	}
	return string(runes)
}

func pageTitle(doc *goquery.Document, sourceURL string) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find(`meta[property="og:title"]`).First().AttrOr("content", ""))
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = hostnameOrUntitled(sourceURL)
	}
	return title
}

func hostnameOrUntitled(sourceURL string) string {
	if u, err := url.Parse(sourceURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return untitledFallback
}

// faviconURL resolves the first declared favicon link against the source
// page. The join for scheme-less, non-rooted hrefs is deliberately naive
// (origin + "/" + href, not relative-path resolution): summaries stored
// before this service existed carry favicon URLs produced exactly this way,
// and regenerating them must not silently rewrite those values.
func faviconURL(doc *goquery.Document, sourceURL string) string {
	href := ""
	for _, sel := range []string{`link[rel="icon"]`, `link[rel="shortcut icon"]`, `link[rel="apple-touch-icon"]`} {
		if v, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(v) != "" {
			href = strings.TrimSpace(v)
			break
		}
	}

	src, err := url.Parse(sourceURL)
	parseOK := err == nil && src.Scheme != "" && src.Host != ""

	if href == "" {
		if !parseOK {
			return ""
		}
		return fmt.Sprintf(faviconServiceFmt, src.Hostname())
	}
	if !parseOK {
		return ""
	}

	origin := src.Scheme + "://" + src.Host
	switch {
	case strings.HasPrefix(href, "//"):
		return src.Scheme + ":" + href
	case strings.HasPrefix(href, "/"):
		return origin + href
	case !strings.HasPrefix(href, "http"):
		return origin + "/" + href
	default:
		return href
	}
}
