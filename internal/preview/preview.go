// Package preview extracts OpenGraph metadata from URLs mentioned in chat
// messages.
package preview

import (
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// fetchTimeout is the maximum time spent fetching a URL. Kept short so a
// slow page never delays chat delivery.
const fetchTimeout = 4 * time.Second

// maxBody is the maximum number of bytes read from a page. Only the <head>
// section is needed.
const maxBody = 256 * 1024 // 256 KB

// urlPattern matches http:// and https:// URLs in message text.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// FirstURL returns the first http(s) URL found in text, or "".
func FirstURL(text string) string {
	return urlPattern.FindString(text)
}

// Preview holds OpenGraph metadata extracted from a web page.
type Preview struct {
	URL         string
	Title       string
	Description string
	Image       string
	SiteName    string
}

// Empty reports whether nothing useful was extracted.
func (p Preview) Empty() bool {
	return p.Title == "" && p.Description == "" && p.Image == ""
}

// Fetcher fetches link previews with a bounded HTTP client.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher with the default timeout and redirect cap.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: fetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch downloads rawURL and extracts OpenGraph metadata. Callers should run
// this in a goroutine; it blocks for up to the fetch timeout.
func (f *Fetcher) Fetch(rawURL string) (Preview, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return Preview{}, err
	}
	req.Header.Set("User-Agent", "partyline-linkpreview/1.0")
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, err
	}
	defer resp.Body.Close()

	// Only parse HTML responses.
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return Preview{URL: rawURL}, nil
	}

	body := io.LimitReader(resp.Body, maxBody)
	return parseOGTags(rawURL, body)
}

// parseOGTags reads HTML from r and extracts OpenGraph meta tags and the
// <title>.
func parseOGTags(rawURL string, r io.Reader) (Preview, error) {
	p := Preview{URL: rawURL}
	tokenizer := html.NewTokenizer(r)
	var inTitle bool
	var titleText string

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			// EOF or error, done parsing.
			if p.Title == "" && titleText != "" {
				p.Title = titleText
			}
			return p, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tag := string(tn)

			if tag == "title" {
				inTitle = true
				continue
			}

			// Stop at <body>, no need to parse further.
			if tag == "body" {
				if p.Title == "" && titleText != "" {
					p.Title = titleText
				}
				return p, nil
			}

			if tag == "meta" && hasAttr {
				parseMeta(tokenizer, &p)
			}

		case html.TextToken:
			if inTitle {
				titleText += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = false
			}
		}
	}
}

// parseMeta extracts OpenGraph and standard meta properties from a <meta>
// tag.
func parseMeta(tokenizer *html.Tokenizer, p *Preview) {
	var property, name, content string
	for {
		key, val, more := tokenizer.TagAttr()
		switch string(key) {
		case "property":
			property = string(val)
		case "name":
			name = string(val)
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}

	if content == "" {
		return
	}

	switch property {
	case "og:title":
		p.Title = content
	case "og:description":
		p.Description = content
	case "og:image":
		p.Image = content
	case "og:site_name":
		p.SiteName = content
	}

	// Fall back to standard meta tags if OG is not set.
	if name == "description" && p.Description == "" {
		p.Description = content
	}
}
