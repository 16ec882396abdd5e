package pipeline

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// minTextChars is the least amount of extracted text worth summarizing.
const minTextChars = 50

type (
	PageFetcher interface {
		Fetch(ctx context.Context, rawURL string) (string, error)
	}

	Summarizer interface {
		Summarize(ctx context.Context, text string) (string, error)
	}

	Result struct {
		Title       string
		Favicon     string // empty means no favicon
		Summary     string
		GeneratedAt time.Time
	}

	Pipeline struct {
		fetcher    PageFetcher
		summarizer Summarizer
		logger     *zap.SugaredLogger
		now        func() time.Time
	}
)

func New(f PageFetcher, s Summarizer, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		fetcher:    f,
		summarizer: s,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one fetch -> extract -> summarize pass for rawURL. It holds
// no state between calls and performs no writes; persisting the result is
// the caller's job, after and only after a nil error.
func (p *Pipeline) Run(ctx context.Context, rawURL string) (*Result, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	p.logger.Infow("fetching content", "url", rawURL)
	html, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	ex := Extract(html, rawURL)
	if len([]rune(ex.Text)) < minTextChars {
		return nil, &Error{
			Kind:    KindInsufficientContent,
			Message: "unable to extract meaningful content from the webpage",
			Title:   ex.Title,
			Favicon: ex.Favicon,
		}
	}

	p.logger.Infow("generating summary", "url", rawURL, "text_chars", len([]rune(ex.Text)))
	summary, err := p.summarizer.Summarize(ctx, ex.Text)
	if err != nil {
		return nil, err
	}

	p.logger.Infow("summary generated", "url", rawURL)
	return &Result{
		Title:       ex.Title,
		Favicon:     ex.Favicon,
		Summary:     summary,
		GeneratedAt: p.now().UTC(),
	}, nil
}

func validateURL(rawURL string) *Error {
	if rawURL == "" {
		return &Error{Kind: KindInvalidInput, Message: "URL is required"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &Error{Kind: KindInvalidInput, Message: "invalid URL format"}
	}
	return nil
}
