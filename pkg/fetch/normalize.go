package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"argusgo/pkg/model"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// trackingParams are query parameters that vary per syndication
// channel without changing the article behind the link.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"fbclid", "gclid", "ref",
}

// CanonicalURL strips tracking parameters and the fragment so
// syntactic variants of the same link compare and hash identically.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String()
}

// ContentHash identifies an article by its normalized title and link.
func ContentHash(title, link string) string {
	sum := sha256.Sum256([]byte(title + "|" + link))
	return hex.EncodeToString(sum[:])
}

// StripHTML returns the visible text of an HTML fragment. Script and
// style subtrees are dropped, entities are decoded, and whitespace is
// collapsed to single spaces.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := xhtml.Parse(strings.NewReader(s))
	if err != nil {
		return collapseSpace(html.UnescapeString(s))
	}
	var b strings.Builder
	collectText(doc, &b)
	return collapseSpace(b.String())
}

func collectText(n *xhtml.Node, b *strings.Builder) {
	if n.Type == xhtml.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	}
	if n.Type == xhtml.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Iframe, atom.Noscript:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeItem converts a feed entry into a candidate article.
// Entries without a title or link are dropped. A published timestamp
// in the future is clamped to the fetch time so fetched_at never
// precedes published_at.
func (p *Pool) normalizeItem(src model.Source, item *gofeed.Item) *model.Article {
	title := collapseSpace(html.UnescapeString(item.Title))
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return nil
	}
	link = CanonicalURL(link)

	now := time.Now().UTC()
	published := now
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}
	if published.After(now) {
		published = now
	}

	summary := StripHTML(item.Description)
	content := StripHTML(item.Content)
	if content == "" {
		content = summary
	}

	return &model.Article{
		URL:               link,
		Title:             title,
		Content:           content,
		Summary:           summary,
		SourceName:        src.Name,
		SourceURL:         src.FeedURL,
		PublishedAt:       published,
		FetchedAt:         now,
		ContentHash:       ContentHash(title, link),
		ImageURL:          imageURL(item),
		OriginalLanguage:  strings.ToLower(src.Language),
		CanonicalLanguage: p.canonicalLang,
	}
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
