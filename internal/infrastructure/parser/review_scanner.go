package parser

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/scanner"
)

const (
	defaultMaxPages       = 5
	defaultReviewSelector = `.review, [data-hook="review"]`

	// ReviewSelectorOption overrides the review block selector for sites that reuse the Amazon layout.
	ReviewSelectorOption = "reviewSelector"
)

var ratingExpr = regexp.MustCompile(`(\d+(\.\d+)?)`)

// ReviewScanner crawls an Amazon-style product page and its review pagination.
type ReviewScanner struct {
	fetcher Fetcher
	delay   time.Duration
	logger  *zap.SugaredLogger
}

// NewReviewScanner wires a page fetcher; delay spaces consecutive page requests.
func NewReviewScanner(fetcher Fetcher, delay time.Duration, log *zap.SugaredLogger) *ReviewScanner {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(nil, "")
	}
	return &ReviewScanner{fetcher: fetcher, delay: delay, logger: log}
}

// Name identifies the strategy inside the registry.
func (r *ReviewScanner) Name() string {
	return "amazon-reviews"
}

type productInfo struct {
	name          string
	price         string
	imageURL      string
	averageRating *float64
}

// Scan follows the "next page" link from the locator and returns one record per review block.
// A captcha or sign-in redirect ends the crawl with whatever was collected before it.
func (r *ReviewScanner) Scan(ctx context.Context, req scanner.Request) (domain.Dataset, error) {
	if strings.TrimSpace(req.Locator) == "" {
		return nil, errors.New("empty locator")
	}

	maxPages := req.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	reviewSelector := defaultReviewSelector
	if sel := req.Options[ReviewSelectorOption]; sel != "" {
		reviewSelector = sel
	}

	limit := rate.Inf
	if r.delay > 0 {
		limit = rate.Every(r.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var (
		dataset domain.Dataset
		product productInfo
		visited = map[string]struct{}{}
		pageURL = req.Locator
	)

	for page := 0; page < maxPages && pageURL != ""; page++ {
		if _, ok := visited[pageURL]; ok {
			break
		}
		visited[pageURL] = struct{}{}

		if err := limiter.Wait(ctx); err != nil {
			return dataset, errors.Wrap(err, "wait for page slot")
		}

		fetched, err := r.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return nil, errors.Wrapf(err, "site %s", req.SiteName)
			}
			r.warn("stop crawl after fetch error", "url", pageURL, "error", err)
			break
		}
		if blockedURL(fetched.URL) {
			r.warn("blocked or redirected to login", "url", fetched.URL)
			break
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fetched.HTML))
		if err != nil {
			return dataset, errors.Wrap(err, "parse document")
		}
		if doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 {
			r.warn("captcha page served", "url", fetched.URL)
			break
		}

		product = product.merge(parseProduct(doc))
		records := parseReviews(doc, reviewSelector, product)
		if len(records) == 0 {
			r.warn("no reviews found on page", "url", fetched.URL)
		}
		r.debug("page scanned", "site", req.SiteName, "page", page+1, "reviews", len(records))
		dataset = append(dataset, records...)

		pageURL = nextPageURL(doc, fetched.URL)
	}

	return dataset, nil
}

func (p productInfo) merge(next productInfo) productInfo {
	if p.name == "" {
		p.name = next.name
	}
	if p.price == "" {
		p.price = next.price
	}
	if p.imageURL == "" {
		p.imageURL = next.imageURL
	}
	if p.averageRating == nil {
		p.averageRating = next.averageRating
	}
	return p
}

func parseProduct(doc *goquery.Document) productInfo {
	info := productInfo{
		name:  strings.TrimSpace(doc.Find("#productTitle").First().Text()),
		price: parsePrice(doc),
	}

	img := doc.Find("#landingImage").First()
	if src, ok := img.Attr("data-old-hires"); ok && src != "" {
		info.imageURL = src
	} else if src, ok := img.Attr("src"); ok {
		info.imageURL = src
	}

	ratingText, _ := doc.Find("#acrPopover").First().Attr("title")
	if ratingText == "" {
		ratingText = doc.Find(`[data-hook="rating-out-of-text"]`).First().Text()
	}
	info.averageRating = parseRating(ratingText)

	return info
}

// parsePrice joins the first currency symbol and whole part with the fraction, e.g. "$12.99".
func parsePrice(doc *goquery.Document) string {
	var parts []string
	doc.Find(`span[aria-hidden="true"] > span.a-price-symbol, span[aria-hidden="true"] > span.a-price-whole`).
		EachWithBreak(func(_ int, s *goquery.Selection) bool {
			parts = append(parts, strings.TrimSuffix(ownText(s), "."))
			return len(parts) < 2
		})

	if fraction := ownText(doc.Find(`span[aria-hidden="true"] > span.a-price-fraction`).First()); fraction != "" {
		parts = append(parts, "."+fraction)
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}

func parseReviews(doc *goquery.Document, selector string, product productInfo) domain.Dataset {
	var records domain.Dataset
	doc.Find(selector).Each(func(_ int, review *goquery.Selection) {
		records = append(records, domain.ExtractedRecord{
			ProductName:   product.name,
			Price:         product.price,
			ImageURL:      product.imageURL,
			AverageRating: product.averageRating,
			Body:          strings.TrimSpace(review.Find(".review-text-content span").First().Text()),
			Rating:        parseRating(review.Find(".review-rating span").First().Text()),
			Helpfulness:   parseHelpful(review.Find(".cr-vote-text").First().Text()),
		})
	})
	return records
}

func parseRating(text string) *float64 {
	match := ratingExpr.FindString(text)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseHelpful reads "12 people found this helpful" or "One person found this helpful".
func parseHelpful(text string) int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	if strings.EqualFold(fields[0], "one") {
		return 1
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func nextPageURL(doc *goquery.Document, current string) string {
	href, ok := doc.Find("li.a-last a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	base, err := url.Parse(current)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func blockedURL(u string) bool {
	return strings.Contains(u, "captcha") || strings.Contains(u, "ap/signin")
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return strings.TrimSpace(b.String())
}

func (r *ReviewScanner) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debugw(msg, args...)
	}
}

func (r *ReviewScanner) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnw(msg, args...)
	}
}
