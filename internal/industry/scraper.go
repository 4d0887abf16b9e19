package industry

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wqlab/screener/internal/contracts"
	"github.com/wqlab/screener/pkg/httputil"
	"github.com/wqlab/screener/pkg/logger"
	"github.com/wqlab/screener/pkg/redis"
)

// maxPages caps the board pagination walk.
const maxPages = 200

var codeRe = regexp.MustCompile(`^\d{6}$`)

// Scraper pulls the industry classification map from the exchange board
// pages. It is the fallback path when the warehouse classification table
// is stale; frames carry the warehouse value when present.
type Scraper struct {
	client  *httputil.Client
	baseURL string
	cache   *redis.Cache // nil disables caching
	logger  *logger.Logger
}

// Option configures optional scraper collaborators.
type Option func(*Scraper)

// WithCache enables daily caching of the classification map.
func WithCache(cache *redis.Cache) Option {
	return func(s *Scraper) { s.cache = cache }
}

// NewScraper creates the board scraper.
func NewScraper(client *httputil.Client, baseURL string, log *logger.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.WithField("component", "industry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Classifications returns the code -> industry map as of date. The map
// settles once per day, so hits come from the daily cache.
func (s *Scraper) Classifications(ctx context.Context, date time.Time) (map[string]string, error) {
	day := date.Format("2006-01-02")

	if s.cache != nil {
		var cached map[string]string
		hit, err := s.cache.Get(ctx, redis.IndustryKey(day), &cached)
		if err == nil && hit {
			return cached, nil
		}
	}

	classes := make(map[string]string)
	emptyPages := 0

	for page := 1; page <= maxPages; page++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		url := fmt.Sprintf("%s/board/industry?page=%d", s.baseURL, page)

		resp, err := s.client.Get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("board page %d failed: %w", page, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read board page %d failed: %w", page, err)
		}

		entries, hasMore := parseBoardHTML(string(body))
		for code, ind := range entries {
			classes[code] = ind
		}

		if !hasMore {
			break
		}

		// Bail out if the board keeps returning empty tables.
		if len(entries) == 0 {
			emptyPages++
			if emptyPages >= 3 {
				break
			}
		} else {
			emptyPages = 0
		}
	}

	if len(classes) == 0 {
		return nil, fmt.Errorf("board returned no classifications")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, redis.IndustryKey(day), classes, redis.TTLDaily); err != nil {
			s.logger.WithError(err).Debug("Industry cache write failed")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"date":  day,
		"count": len(classes),
	}).Debug("Fetched industry classifications")

	return classes, nil
}

// parseBoardHTML extracts code/industry pairs from one board page.
// Row layout: code | name | industry | ... ; rows without a 6-digit code
// cell are headers or spacers.
func parseBoardHTML(html string) (map[string]string, bool) {
	entries := make(map[string]string)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return entries, false
	}

	doc.Find("table.board tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}

		code := strings.TrimSpace(cells.Eq(0).Text())
		if !codeRe.MatchString(code) {
			return
		}

		ind := strings.TrimSpace(cells.Eq(2).Text())
		if ind == "" {
			return
		}

		entries[code] = ind
	})

	hasMore := doc.Find(".next").Length() > 0
	return entries, hasMore
}

// Backfill fills blank frame industries from the scraped map. Frames
// that already carry a warehouse classification are left alone. Returns
// the number of frames filled.
func Backfill(classes map[string]string, fs *contracts.FrameSet) int {
	filled := 0
	for code, frame := range fs.Frames {
		if frame.Industry != "" {
			continue
		}
		if ind, ok := classes[code]; ok {
			frame.Industry = ind
			filled++
		}
	}
	return filled
}
