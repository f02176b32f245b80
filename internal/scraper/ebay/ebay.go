// Package ebay implements the eBay sold-listings source adapter.
package ebay

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rotisserie/eris"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/scraper"
)

const defaultBaseURL = "https://www.ebay.com"

// Sanity bounds for collectible prices; anything outside is listing noise
// (lots, cases, protectors).
const (
	minPlausiblePrice = 1.0
	maxPlausiblePrice = 500.0
	maxQuotes         = 5
)

var priceRe = regexp.MustCompile(`\$([\d,]+(?:\.\d{1,2})?)`)

// Config controls adapter behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Adapter scrapes completed eBay listings for an item's market price.
type Adapter struct {
	cfg           Config
	clock         catalog.Clock
	baseCollector *colly.Collector
}

// New builds an eBay Adapter.
func New(cfg Config, clock catalog.Clock) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if clock == nil {
		clock = catalog.SystemClock{}
	}
	return &Adapter{
		cfg:           cfg,
		clock:         clock,
		baseCollector: colly.NewCollector(colly.Async(false)),
	}
}

// Source identifies this adapter.
func (a *Adapter) Source() catalog.SourceID { return catalog.SourceEbay }

// Scrape fetches the sold/completed search results for the item and extracts
// up to five deduplicated price quotes.
func (a *Adapter) Scrape(ctx context.Context, query scraper.ItemQuery) ([]scraper.Quote, error) {
	searchURL := a.searchURL(query)

	body, statusCode, err := a.fetch(ctx, searchURL)
	if err != nil {
		return nil, scraper.NewFailure(scraper.FailureNetwork, a.Source(), err)
	}
	if statusCode == http.StatusTooManyRequests {
		return nil, scraper.NewFailure(scraper.FailureRateLimited, a.Source(),
			eris.Errorf("ebay returned status %d", statusCode))
	}
	if statusCode != http.StatusOK {
		return nil, scraper.NewFailure(scraper.FailureNetwork, a.Source(),
			eris.Errorf("ebay returned status %d", statusCode))
	}

	quotes, err := a.extractQuotes(body, searchURL)
	if err != nil {
		return nil, scraper.NewFailure(scraper.FailureParse, a.Source(), err)
	}
	if len(quotes) == 0 {
		return nil, scraper.NewFailure(scraper.FailureNotFound, a.Source(),
			eris.Errorf("no sold listings for %q", query.SearchTerms()))
	}
	return quotes, nil
}

func (a *Adapter) searchURL(query scraper.ItemQuery) string {
	terms := query.SearchTerms() + " funko pop"
	params := url.Values{}
	params.Set("_nkw", terms)
	params.Set("_sacat", "0")
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	return fmt.Sprintf("%s/sch/i.html?%s", a.cfg.BaseURL, params.Encode())
}

// fetch runs a single GET through a cloned collector, honoring ctx while the
// visit runs on its own goroutine.
func (a *Adapter) fetch(ctx context.Context, target string) ([]byte, int, error) {
	collector := a.baseCollector.Clone()
	if a.cfg.UserAgent != "" {
		collector.UserAgent = a.cfg.UserAgent
	}
	collector.SetRequestTimeout(a.cfg.Timeout)

	var (
		body       []byte
		statusCode int
		fetchErr   error
	)
	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("ebay fetch canceled: %w", ctx.Err())
	case err := <-done:
		// Colly surfaces non-2xx responses through OnError; keep the status
		// code so the caller can classify rate limits.
		if statusCode == http.StatusTooManyRequests {
			return body, statusCode, nil
		}
		if err != nil {
			return nil, statusCode, fmt.Errorf("ebay visit failed: %w", err)
		}
		if fetchErr != nil {
			return nil, statusCode, fmt.Errorf("ebay response failed: %w", fetchErr)
		}
		return body, statusCode, nil
	}
}

// extractQuotes walks structured listing cards first and falls back to a
// whole-page price sweep when the markup has shifted under us.
func (a *Adapter) extractQuotes(body []byte, searchURL string) ([]scraper.Quote, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "parse ebay results")
	}

	now := a.clock.Now()
	var quotes []scraper.Quote

	doc.Find(".s-item").Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(".s-item__title").Text())
		priceText := strings.TrimSpace(sel.Find(".s-item__price").Text())
		price, ok := parsePrice(priceText)
		if !ok {
			return
		}
		condition := conditionFromListing(sel.Find(".SECONDARY_INFO").Text())
		href := sel.Find(".s-item__link").AttrOr("href", searchURL)
		quotes = append(quotes, scraper.Quote{
			Source:     catalog.SourceEbay,
			Price:      price,
			Currency:   "USD",
			Condition:  condition,
			Title:      title,
			ListingURL: href,
			ObservedAt: now,
		})
	})

	if len(quotes) == 0 {
		for _, match := range priceRe.FindAllStringSubmatch(string(body), -1) {
			price, ok := parsePrice(match[0])
			if !ok {
				continue
			}
			quotes = append(quotes, scraper.Quote{
				Source:     catalog.SourceEbay,
				Price:      price,
				Currency:   "USD",
				Condition:  catalog.ConditionMint,
				ListingURL: searchURL,
				ObservedAt: now,
			})
		}
	}

	return dedupeQuotes(quotes), nil
}

// parsePrice extracts the first dollar amount from text and applies the
// plausibility bounds.
func parsePrice(text string) (float64, bool) {
	match := priceRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	clean := strings.ReplaceAll(match[1], ",", "")
	price, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	if price < minPlausiblePrice || price > maxPlausiblePrice {
		return 0, false
	}
	return price, true
}

func conditionFromListing(secondary string) catalog.Condition {
	s := strings.ToLower(secondary)
	switch {
	case strings.Contains(s, "brand new"), strings.Contains(s, "new (other)"):
		return catalog.ConditionMint
	case strings.Contains(s, "pre-owned"), strings.Contains(s, "used"):
		return catalog.ConditionUsed
	case strings.Contains(s, "open box"):
		return catalog.ConditionOpenBox
	case s == "":
		return catalog.ConditionMint
	default:
		return catalog.ConditionUnknown
	}
}

// dedupeQuotes drops near-identical prices (within a cent) and caps the
// result at maxQuotes.
func dedupeQuotes(quotes []scraper.Quote) []scraper.Quote {
	var out []scraper.Quote
	for _, q := range quotes {
		dup := false
		for _, kept := range out {
			if diff := q.Price - kept.Price; diff < 0.01 && diff > -0.01 {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, q)
		}
		if len(out) == maxQuotes {
			break
		}
	}
	return out
}
