package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/samvad-hq/samvad-article-pipeline/internal/logger"
)

// dateMetaKeys are tried in order.
var dateMetaKeys = []string{
	"article:published_time",
	"og:published_time",
	"datePublished",
	"date",
	"pubdate",
	"publishdate",
	"publish_date",
	"publish-date",
	"dc.date.issued",
	"dc.date",
	"sailthru.date",
	"parsely-pub-date",
	"article.published",
	"published_time",
}

var dateElementSelectors = []string{
	"time[datetime]",
	`[itemprop="datePublished"]`,
	"time",
	".published",
	".pubdate",
	".publish-date",
	".post-date",
	".entry-date",
	".article-date",
	".date",
}

const monthNames = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2})?(?:Z|[+-]\d{2}:?\d{2})?)?\b`),
	regexp.MustCompile(`\b` + monthNames + `\.?\s+\d{1,2},?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}\s+` + monthNames + `\.?,?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
}

var (
	relativeAgo = regexp.MustCompile(`(?i)\b(\d+|an?|one)\s+(minute|hour|day|week|month|year)s?\s+ago\b`)
	relativeDay = regexp.MustCompile(`(?i)\b(today|yesterday)\b`)
	monthDay    = regexp.MustCompile(`\b(` + monthNames + `)\.?\s+(\d{1,2})\b`)
)

// maxBodyScan bounds how much body text the pattern strategies inspect.
const maxBodyScan = 20000

// DateChain builds the published-date strategy chain.
func DateChain(selector string, log logger.Logger) Chain[*time.Time] {
	var strategies []Strategy[*time.Time]
	if selector != "" {
		strategies = append(strategies, Strategy[*time.Time]{Name: "source-selector", Extract: func(d *Document) (*time.Time, error) {
			return dateFromElements(d, selector), nil
		}})
	}
	strategies = append(strategies,
		Strategy[*time.Time]{Name: "meta", Extract: func(d *Document) (*time.Time, error) {
			for _, key := range dateMetaKeys {
				if t := parseDate(d.Meta(key)); t != nil {
					return t, nil
				}
			}
			return nil, nil
		}},
		Strategy[*time.Time]{Name: "element", Extract: func(d *Document) (*time.Time, error) {
			for _, sel := range dateElementSelectors {
				if t := dateFromElements(d, sel); t != nil {
					return t, nil
				}
			}
			return nil, nil
		}},
		Strategy[*time.Time]{Name: "body-pattern", Extract: func(d *Document) (*time.Time, error) {
			text := bodyText(d)
			for _, re := range datePatterns {
				for _, m := range re.FindAllString(text, 5) {
					if t := parseDate(m); t != nil {
						return t, nil
					}
				}
			}
			return nil, nil
		}},
		Strategy[*time.Time]{Name: "natural-language", Extract: func(d *Document) (*time.Time, error) {
			return parseNaturalDate(bodyText(d), d.Now()), nil
		}},
	)
	return Chain[*time.Time]{
		Field:      "published_at",
		Strategies: strategies,
		Empty:      func(t *time.Time) bool { return t == nil || t.IsZero() },
		Log:        log,
	}
}

func dateFromElements(d *Document, selector string) *time.Time {
	var out *time.Time
	d.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"datetime", "content"} {
			if v, ok := s.Attr(attr); ok {
				if t := parseDate(v); t != nil {
					out = t
					return false
				}
			}
		}
		if t := parseDate(s.Text()); t != nil {
			out = t
			return false
		}
		return true
	})
	return out
}

// bodyText is the text scanned by the pattern strategies: one line per text
// node, so words in adjacent elements never fuse and a name pattern cannot
// run on into the next block. It is cut to maxBodyScan bytes on a rune
// boundary.
func bodyText(d *Document) string {
	text := strings.Join(textNodes(d.Doc.Find("body")), "\n")
	if len(text) <= maxBodyScan {
		return text
	}
	cut := maxBodyScan
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// parseDate parses a loosely formatted date string, returning nil on failure.
func parseDate(raw string) *time.Time {
	raw = CleanText(raw)
	if raw == "" || len(raw) > 64 {
		return nil
	}
	raw = strings.TrimPrefix(raw, "Published ")
	raw = strings.TrimPrefix(raw, "Updated ")
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil || t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// parseNaturalDate resolves relative phrases ("3 hours ago", "yesterday") and
// year-less dates ("March 5") against now, never returning a future date.
func parseNaturalDate(text string, now time.Time) *time.Time {
	now = now.UTC()

	if m := relativeAgo.FindStringSubmatch(text); len(m) == 3 {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		t := subtractUnit(now, n, strings.ToLower(m[2]))
		return &t
	}

	if m := relativeDay.FindStringSubmatch(text); len(m) == 2 {
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if strings.EqualFold(m[1], "yesterday") {
			day = day.AddDate(0, 0, -1)
		}
		return &day
	}

	for _, m := range monthDay.FindAllStringSubmatch(text, 5) {
		candidate := m[1] + " " + m[2] + ", " + strconv.Itoa(now.Year())
		t := parseDate(candidate)
		if t == nil {
			continue
		}
		if t.After(now) {
			prev := t.AddDate(-1, 0, 0)
			t = &prev
		}
		return t
	}
	return nil
}

func subtractUnit(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	default:
		return now.AddDate(-n, 0, 0)
	}
}
