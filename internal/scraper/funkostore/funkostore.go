// Package funkostore implements the official Funko store source adapter.
// The store exposes a JSON product search; items found there are in current
// retail circulation, so quotes come back as mint at list price.
package funkostore

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rotisserie/eris"

	"github.com/popvault/pricewatch/internal/catalog"
	"github.com/popvault/pricewatch/internal/scraper"
)

const defaultBaseURL = "https://funko.com"

// Config controls adapter behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Adapter queries the official store's product search.
type Adapter struct {
	cfg    Config
	clock  catalog.Clock
	client *resty.Client
}

type searchResponse struct {
	Products []product `json:"products"`
}

type product struct {
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	URL       string  `json:"url"`
	InStock   bool    `json:"in_stock"`
	Exclusive bool    `json:"exclusive"`
}

// New builds a Funko store Adapter.
func New(cfg Config, clock catalog.Clock) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if clock == nil {
		clock = catalog.SystemClock{}
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Adapter{cfg: cfg, clock: clock, client: client}
}

// Source identifies this adapter.
func (a *Adapter) Source() catalog.SourceID { return catalog.SourceFunkoStore }

// Scrape searches the store and returns in-stock matches as mint quotes.
func (a *Adapter) Scrape(ctx context.Context, query scraper.ItemQuery) ([]scraper.Quote, error) {
	var result searchResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("q", query.SearchTerms()).
		SetResult(&result).
		Get("/api/search")
	if err != nil {
		return nil, scraper.NewFailure(scraper.FailureNetwork, a.Source(),
			eris.Wrap(err, "funko store search"))
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, scraper.NewFailure(scraper.FailureRateLimited, a.Source(),
			eris.Errorf("funko store returned status %d", resp.StatusCode()))
	case http.StatusNotFound:
		return nil, scraper.NewFailure(scraper.FailureNotFound, a.Source(),
			eris.Errorf("no store page for %q", query.SearchTerms()))
	default:
		return nil, scraper.NewFailure(scraper.FailureNetwork, a.Source(),
			eris.Errorf("funko store returned status %d", resp.StatusCode()))
	}

	now := a.clock.Now()
	var quotes []scraper.Quote
	for _, p := range result.Products {
		if !p.InStock || p.Price <= 0 {
			continue
		}
		if !matchesQuery(p.Title, query) {
			continue
		}
		currency := p.Currency
		if currency == "" {
			currency = "USD"
		}
		quotes = append(quotes, scraper.Quote{
			Source:     catalog.SourceFunkoStore,
			Price:      p.Price,
			Currency:   currency,
			Condition:  catalog.ConditionMint,
			Title:      p.Title,
			ListingURL: p.URL,
			ObservedAt: now,
		})
	}

	if len(quotes) == 0 {
		return nil, scraper.NewFailure(scraper.FailureNotFound, a.Source(),
			eris.Errorf("no in-stock matches for %q", query.SearchTerms()))
	}
	return quotes, nil
}

// matchesQuery requires the product title to contain the item name; the
// search endpoint is fuzzy and returns whole-series noise otherwise.
func matchesQuery(title string, query scraper.ItemQuery) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(query.Name))
}
