// Package extract reads job posting fields out of listing cards and detail
// pages. Cards are consulted first and the detail document second; either
// may be nil.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sw33tLie/jobscope/pkg/scoring"
	"golang.org/x/net/html"
)

// Extractor is the field extractor the pipeline depends on.
type Extractor interface {
	Extract(card, detail *goquery.Selection) scoring.Signals
	HireRateText(card, detail *goquery.Selection) string
	ConnectsText(detail *goquery.Selection) string
	MemberSinceText(detail *goquery.Selection) string
	JobInfo(card, detail *goquery.Selection) JobInfo
}

// JobInfo is what gets sent to an evaluation provider.
type JobInfo struct {
	Title       string
	Description string
	Skills      string
}

// Selectors is the default Extractor. Each field is looked up by trying
// its selectors in order.
type Selectors struct {
	Proposals       []string
	Experience      []string
	Budget          []string
	Duration        []string
	PaymentVerified []string
	ClientSpend     []string
	ClientRating    []string
	PostedAt        []string
	ClientLocation  []string
	Featured        string
	HireRateStats   []string
	MemberSince     []string
	Title           []string
	DetailTitle     []string
	Description     []string
	Skills          string
}

var _ Extractor = (*Selectors)(nil)

// New returns the selectors matching the job board's current markup.
func New() *Selectors {
	return &Selectors{
		Proposals:       []string{`strong[data-test="proposals"]`, `[data-test="proposals-tier"] > strong`},
		Experience:      []string{`span[data-test="contractor-tier"]`, `[data-test="experience-level"] > strong`},
		Budget:          []string{`[data-test="budget"]`, `[data-test="is-fixed-price"] > strong:nth-of-type(2)`},
		Duration:        []string{`[data-test="duration"]`, `[data-test="duration-label"] > strong:nth-of-type(2)`},
		PaymentVerified: []string{`[data-test="payment-verification-status"] > strong`, `[data-test="payment-verified"]`},
		ClientSpend:     []string{`[data-test="client-spendings"] > strong`, `[data-test="total-spent"]`},
		ClientRating:    []string{`[data-test='js-feedback']`, `[data-test='total-feedback']`},
		PostedAt:        []string{`[data-test="posted-on"]`, `[data-test="job-pubilshed-date"]`},
		ClientLocation:  []string{`[data-test="client-country"]`, `[data-test="location"]`},
		Featured:        `[data-test="featured-badge"]`,
		HireRateStats: []string{
			`li[data-qa="client-job-posting-stats"]`,
			`li[data-test="client-job-posting-stats"]`,
			`[data-qa="client-job-posting-stats"]`,
			`[data-test="client-job-posting-stats"]`,
			`[data-test="job-activity"]`,
			`[data-test="job-activity-summary"]`,
			`[data-test="job-activity-data"]`,
		},
		MemberSince: []string{
			`li[data-qa="client-contract-date"] > small`,
			`li[data-test="client-contract-date"] > small`,
			`[data-qa="client-contract-date"]`,
			`[data-test="client-contract-date"]`,
		},
		Title:       []string{`[data-test="job-tile-title"]`, `.job-tile-title`, `a`},
		DetailTitle: []string{`[data-test="job-title"]`, `h1`, `.job-title`},
		Description: []string{
			`[data-test="job-description-text"]`,
			`[data-test="job-tile-description"]`,
			`[data-test="job-description"]`,
			`[data-test="JobDescription"]`,
			`.job-description`,
			`.job-tile-description`,
		},
		Skills: `[data-test="skill-tag"]`,
	}
}

var (
	hireRateTextRe = regexp.MustCompile(`(?i)(\d{1,3})%\s*hire rate`)
	openJobsRe     = regexp.MustCompile(`(?i)(\d+)\s*open jobs?`)
	connectsRe     = regexp.MustCompile(`(?i)(\d+)\s*connects?`)
	connectWordRe  = regexp.MustCompile(`(?i)connect`)
	requiredWordRe = regexp.MustCompile(`(?i)required`)
)

// Extract collects the raw scoring signals.
func (s *Selectors) Extract(card, detail *goquery.Selection) scoring.Signals {
	value := func(selectors []string) string {
		if v := text(card, selectors); v != "" {
			return v
		}
		return text(detail, selectors)
	}
	return scoring.Signals{
		HireRate:        s.HireRateText(card, detail),
		Proposals:       value(s.Proposals),
		Experience:      value(s.Experience),
		Budget:          value(s.Budget),
		Commitment:      value(s.Duration),
		PaymentVerified: value(s.PaymentVerified),
		ClientSpend:     value(s.ClientSpend),
		ClientRating:    value(s.ClientRating),
		PostedAt:        value(s.PostedAt),
		ClientLocation:  value(s.ClientLocation),
		Featured:        has(card, s.Featured) || has(detail, s.Featured),
	}
}

// HireRateText returns the client's hiring stats line, e.g.
// "75% hire rate, 3 open jobs".
func (s *Selectors) HireRateText(card, detail *goquery.Selection) string {
	for _, sel := range s.HireRateStats {
		src := first(card, sel)
		if src == nil {
			src = first(detail, sel)
		}
		if src == nil {
			continue
		}
		inner := src.Find("div").First()
		if inner.Length() == 0 {
			inner = src
		}
		if t := strings.TrimSpace(inner.Text()); t != "" {
			return t
		}
		if t := strings.TrimSpace(src.Text()); t != "" {
			return t
		}
		break
	}

	source := selectionText(card)
	if source == "" {
		source = bodyText(detail)
	}
	if source == "" {
		return ""
	}
	hire := hireRateTextRe.FindStringSubmatch(source)
	open := openJobsRe.FindStringSubmatch(source)
	var parts []string
	if hire != nil {
		parts = append(parts, hire[1]+"% hire rate")
	}
	if open != nil {
		parts = append(parts, open[1]+" open jobs")
	}
	return strings.Join(parts, ", ")
}

// ConnectsText returns how many connects a proposal costs, normalized to
// "N Connects Required".
func (s *Selectors) ConnectsText(detail *goquery.Selection) string {
	if detail == nil {
		return ""
	}
	var found string
	detail.Find("div").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		if ownText(div) != "Send a proposal for:" {
			return true
		}
		t := strings.TrimSpace(div.Find("strong").First().Text())
		if t == "" {
			return true
		}
		if !connectWordRe.MatchString(t) {
			t += " Connects"
		}
		if !requiredWordRe.MatchString(t) {
			t += " Required"
		}
		found = t
		return false
	})
	if found != "" {
		return found
	}
	if m := connectsRe.FindStringSubmatch(bodyText(detail)); m != nil {
		return m[1] + " Connects Required"
	}
	return ""
}

// MemberSinceText returns the client's "Member since" line.
func (s *Selectors) MemberSinceText(detail *goquery.Selection) string {
	return text(detail, s.MemberSince)
}

// JobInfo gathers the title, description and skills of a posting.
func (s *Selectors) JobInfo(card, detail *goquery.Selection) JobInfo {
	info := JobInfo{Title: text(card, s.Title)}
	if info.Title == "" {
		info.Title = text(detail, s.DetailTitle)
	}
	if info.Title == "" {
		info.Title = "Untitled"
	}

	info.Description = text(card, s.Description)
	if info.Description == "" {
		info.Description = text(detail, s.Description[:1])
	}
	if info.Description == "" && card != nil {
		info.Description = strings.TrimSpace(card.Text())
	}

	root := card
	if root == nil || root.Find(s.Skills).Length() == 0 {
		if detail != nil {
			root = detail
		}
	}
	if root != nil {
		var skills []string
		root.Find(s.Skills).Each(func(_ int, el *goquery.Selection) {
			if t := strings.TrimSpace(el.Text()); t != "" {
				skills = append(skills, t)
			}
		})
		info.Skills = strings.Join(skills, ", ")
	}
	return info
}

// text returns the trimmed text of the first element matching one of the
// selectors, trying them in order.
func text(root *goquery.Selection, selectors []string) string {
	if root == nil {
		return ""
	}
	for _, sel := range selectors {
		found := ""
		root.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			found = strings.TrimSpace(el.Text())
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func first(root *goquery.Selection, sel string) *goquery.Selection {
	if root == nil {
		return nil
	}
	s := root.Find(sel).First()
	if s.Length() == 0 {
		return nil
	}
	return s
}

func has(root *goquery.Selection, sel string) bool {
	return root != nil && root.Find(sel).Length() > 0
}

func selectionText(s *goquery.Selection) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(s.Text())
}

func bodyText(doc *goquery.Selection) string {
	if doc == nil {
		return ""
	}
	if body := doc.Find("body"); body.Length() > 0 {
		return strings.TrimSpace(body.Text())
	}
	return selectionText(doc)
}

// ownText joins the element's direct text children.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(strings.TrimSpace(c.Data))
			}
		}
	}
	return b.String()
}
