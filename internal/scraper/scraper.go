package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/boardwatch/boardwatch/pkg/config"
	"github.com/boardwatch/boardwatch/pkg/errors"
	"github.com/boardwatch/boardwatch/pkg/logging"
)

// Article is one board entry matched by a watch configuration
type Article struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Date   string `json:"date"`
	Link   string `json:"link"`
	Board  string `json:"board"`
}

// Client scrapes PTT board index pages. The board requires an over-18
// confirmation cookie before serving some boards; the client accepts
// the interstitial once and the cookie jar carries it afterwards.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a scraper client
func NewClient(cfg *config.ScraperConfig, logger *logging.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("scraper configuration is required")
	}
	if logger == nil {
		logger = logging.GetLogger()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to create cookie jar").WithCause(err)
	}

	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// FetchArticles scrapes the board index and returns entries whose
// titles match any of the keywords, case-insensitively. Scanning stops
// once postCount matches are collected; at most twice that many
// entries are considered.
func (c *Client) FetchArticles(ctx context.Context, board string, postCount int, keywords []string) ([]Article, error) {
	if board == "" {
		return nil, errors.NewValidationError("board is required")
	}
	if postCount <= 0 {
		return nil, errors.NewValidationError("post count must be positive")
	}

	indexURL := fmt.Sprintf("%s/bbs/%s/index.html", c.baseURL, board)

	resp, err := c.get(ctx, indexURL)
	if err != nil {
		return nil, err
	}

	if needsAgeVerification(resp) {
		resp.Body.Close()
		c.logger.LogScrapeEvent(ctx, "age_verification", board, nil)

		if err := c.acceptAgeVerification(ctx, indexURL); err != nil {
			return nil, err
		}
		resp, err = c.get(ctx, indexURL)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	entries, err := parseBoardIndex(resp.Body, c.baseURL, board)
	if err != nil {
		return nil, errors.NewScrapeError(board, "failed to parse board index").WithCause(err)
	}

	articles := filterArticles(entries, postCount, keywords)

	c.logger.LogScrapeEvent(ctx, "board_scraped", board, logrus.Fields{
		"entries_parsed":   len(entries),
		"articles_matched": len(articles),
	})
	return articles, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to build request").WithCause(err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewTimeoutError("board fetch").WithCause(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, errors.NewNotFoundError("board")
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, errors.NewScrapeError(rawURL, fmt.Sprintf("board returned status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, errors.NewValidationError(fmt.Sprintf("board request rejected with status %d", resp.StatusCode))
	}

	return resp, nil
}

// needsAgeVerification reports whether the response landed on the
// over-18 interstitial instead of the board index
func needsAgeVerification(resp *http.Response) bool {
	if resp.Request != nil && strings.Contains(resp.Request.URL.Path, "ask/over18") {
		return true
	}
	return false
}

func (c *Client) acceptAgeVerification(ctx context.Context, fromURL string) error {
	verifyURL := c.baseURL + "/ask/over18"

	form := url.Values{}
	form.Set("from", strings.TrimPrefix(fromURL, c.baseURL))
	form.Set("yes", "yes")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.NewInternalError("failed to build verification request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewTimeoutError("age verification").WithCause(err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.NewScrapeError(verifyURL, fmt.Sprintf("age verification returned status %d", resp.StatusCode))
	}

	return nil
}

// filterArticles applies the keyword filter and scan limits. With no
// keywords every entry matches.
func filterArticles(entries []Article, postCount int, keywords []string) []Article {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	scanLimit := postCount * 2
	if scanLimit > len(entries) {
		scanLimit = len(entries)
	}

	matched := make([]Article, 0, postCount)
	for _, entry := range entries[:scanLimit] {
		if len(lowered) > 0 {
			title := strings.ToLower(entry.Title)
			found := false
			for _, kw := range lowered {
				if strings.Contains(title, kw) {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}

		matched = append(matched, entry)
		if len(matched) >= postCount {
			break
		}
	}

	return matched
}
