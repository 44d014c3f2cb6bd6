// Package scraper extracts character data from public character pages.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"character-nexus/backend/internal/models"
	"character-nexus/backend/internal/sanitize"
	"character-nexus/backend/pkg/logger"

	"github.com/PuerkitoBio/goquery"
)

// UnknownName is used when a page carries no recognizable character name.
const UnknownName = "Unknown Character"

// Selector cascades, tried in order until one yields a non-empty value.
var (
	nameSelectors        = []string{"h1", "[data-character-name]"}
	bioSelectors         = []string{"[data-character-bio]", ".character-bio"}
	personalitySelectors = []string{"[data-character-personality]", ".character-personality"}
	scenarioSelectors    = []string{"[data-character-scenario]", ".character-scenario"}
	introSelectors       = []string{"[data-character-intro]", ".character-intro"}
	tagSelectors         = []string{"[data-tag]", ".character-tag"}
	nsfwMarkers          = []string{"nsfw", "18+", "adult"}
)

// Result is the character data found on a page. Text fields are sanitized.
type Result struct {
	Name          string
	Bio           string
	Personality   string
	Scenario      string
	IntroMessage  string
	ImageURL      string
	Tags          []string
	ContentRating string
	Source        string
}

// Options tunes the scraper.
type Options struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
}

// HTMLScraper fetches a page over plain HTTP and reads it with CSS selectors.
// Pages that render their content with script are not supported.
type HTMLScraper struct {
	client *http.Client
	opts   Options
	log    *logger.Logger
}

func NewHTMLScraper(opts Options, log *logger.Logger) *HTMLScraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 5 << 20
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &HTMLScraper{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    log.WithComponent("scraper"),
	}
}

// Scrape fetches pageURL and extracts the character it describes.
func (s *HTMLScraper) Scrape(ctx context.Context, pageURL string) (*Result, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	s.log.Info("Starting scrape", "url", pageURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch page: unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.opts.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	res := extract(doc, base)
	s.log.Info("Scrape completed",
		"url", pageURL,
		"name", res.Name,
		"has_image", res.ImageURL != "",
		"tag_count", len(res.Tags),
	)
	return res, nil
}

func extract(doc *goquery.Document, base *url.URL) *Result {
	res := &Result{
		Name:          firstText(doc, nameSelectors...),
		Bio:           firstText(doc, bioSelectors...),
		Personality:   firstText(doc, personalitySelectors...),
		Scenario:      firstText(doc, scenarioSelectors...),
		IntroMessage:  firstText(doc, introSelectors...),
		ContentRating: models.RatingSFW,
		Source:        base.String(),
	}

	if res.Name == "" {
		res.Name = meta(doc, "og:title")
	}
	if res.Name == "" {
		res.Name = UnknownName
	}
	if res.Bio == "" {
		res.Bio = meta(doc, "og:description")
	}

	image := meta(doc, "og:image")
	for _, sel := range []string{"img[data-character-image]", ".character-image img", "img"} {
		if image != "" {
			break
		}
		image = strings.TrimSpace(doc.Find(sel).First().AttrOr("src", ""))
	}
	res.ImageURL = resolve(base, image)

	for _, sel := range tagSelectors {
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			if tag := strings.TrimSpace(el.Text()); tag != "" {
				res.Tags = append(res.Tags, tag)
			}
		})
		if len(res.Tags) > 0 {
			break
		}
	}

	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range nsfwMarkers {
		if strings.Contains(body, marker) {
			res.ContentRating = models.RatingNSFW
			break
		}
	}

	res.Bio = sanitize.HTML(res.Bio)
	res.Personality = sanitize.HTML(res.Personality)
	res.Scenario = sanitize.HTML(res.Scenario)
	res.IntroMessage = sanitize.HTML(res.IntroMessage)
	return res
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func meta(doc *goquery.Document, property string) string {
	sel := fmt.Sprintf(`meta[property=%q]`, property)
	return strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
}

// resolve makes ref absolute against the page URL. Unparseable refs are dropped.
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
