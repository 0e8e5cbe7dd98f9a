package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

var itemIDRe = regexp.MustCompile(`~([0-9a-zA-Z]+)`)

const (
	jobLinkSelector = `a[href*="/jobs/"]`
	cardSelector    = `section.air3-card-section, article.job-tile`
	uidAttr         = "data-ev-job-uid"
)

// Card is one job posting found on a listing page.
type Card struct {
	Index     int
	URL       string
	ItemID    string
	Selection *goquery.Selection
}

// ItemID returns the stable id of a posting: the "~id" token of its URL,
// else the card's data-ev-job-uid attribute, else the URL itself.
func ItemID(rawURL string, card *goquery.Selection) string {
	if m := itemIDRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if card != nil {
		if uid, ok := card.Attr(uidAttr); ok && uid != "" {
			return uid
		}
		if uid, ok := card.Find("[" + uidAttr + "]").First().Attr(uidAttr); ok && uid != "" {
			return uid
		}
	}
	return rawURL
}

// PageItemID finds the id of the posting shown on a detail page. It
// returns "" when the page does not identify one.
func PageItemID(pageURL string, doc *goquery.Selection) string {
	if m := itemIDRe.FindStringSubmatch(pageURL); m != nil {
		return m[1]
	}
	if doc == nil {
		return ""
	}
	uid, _ := doc.Find("[" + uidAttr + "]").First().Attr(uidAttr)
	return uid
}

// Listing returns the job cards of a listing page in document order. Links
// are resolved against base and only those on base's registrable domain
// are kept; repeated links to the same posting yield one card.
func Listing(doc *goquery.Document, base *url.URL) []Card {
	site := registrableDomain(base.Hostname())
	seen := make(map[string]bool)
	var cards []Card

	doc.Find(jobLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if !strings.HasPrefix(abs.Path, "/jobs/") {
			return
		}
		if registrableDomain(abs.Hostname()) != site {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if seen[link] {
			return
		}
		seen[link] = true

		card := a.Closest(cardSelector)
		if card.Length() == 0 {
			card = a.Parent().Parent().Parent()
		}
		cards = append(cards, Card{
			Index:     len(cards) + 1,
			URL:       link,
			ItemID:    ItemID(link, card),
			Selection: card,
		})
	})
	return cards
}

// CountJobLinks returns how many job links the document holds.
func CountJobLinks(doc *goquery.Document) int {
	return doc.Find(jobLinkSelector).Length()
}

func registrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	domain, err := publicsuffix.Domain(host)
	if err != nil || domain == "" {
		return host
	}
	return domain
}
