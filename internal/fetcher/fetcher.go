package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/palamut62/ai-gant-news/internal/domain"
	"github.com/palamut62/ai-gant-news/internal/logging"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// Options shapes the prompts sent for each locale.
type Options struct {
	MinItems       int
	MaxItems       int
	TopicPrimary   string
	TopicSecondary string
}

// Result holds the raw replies; a nil reply means that locale failed.
type Result struct {
	Primary   *string
	Secondary *string
	Errors    []error
}

// Complete reports whether both replies arrived.
func (r Result) Complete() bool {
	return r.Primary != nil && r.Secondary != nil
}

// Exhausted reports whether neither reply arrived.
func (r Result) Exhausted() bool {
	return r.Primary == nil && r.Secondary == nil
}

// Fetcher asks the generator for the same report in both locales at once.
type Fetcher struct {
	generator ports.Generator
	opts      Options
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// New wires a fetcher around a generator.
func New(gen ports.Generator, opts Options, logger *slog.Logger, rec *metrics.Recorder) *Fetcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Fetcher{generator: gen, opts: opts, logger: logger, metrics: rec}
}

// Fetch issues both locale requests concurrently and waits for both. Failures never surface as
// an error; the failed locale's reply is nil and the cause is kept in Result.Errors.
func (f *Fetcher) Fetch(ctx context.Context, window domain.Window) Result {
	var res Result
	if f.generator == nil {
		res.Errors = append(res.Errors, fmt.Errorf("no generator configured"))
		return res
	}

	primaryPrompt, secondaryPrompt, err := RenderPrompts(f.opts, window)
	if err != nil {
		res.Errors = append(res.Errors, err)
		return res
	}

	locales := [2]domain.Locale{domain.Primary, domain.Secondary}
	prompts := [2]string{primaryPrompt, secondaryPrompt}
	var (
		replies [2]*string
		errs    [2]error
		wg      sync.WaitGroup
	)

	for i := range prompts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, err := f.generator.Generate(ctx, prompts[i])
			if err != nil {
				errs[i] = fmt.Errorf("%s request: %w", locales[i].Code(), err)
				return
			}
			replies[i] = &text
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		f.logger.Warn("generator request failed", "locale", locales[i].Code(), "provider", f.generator.Name(), "error", err)
		f.metrics.FetchFailed(locales[i].Code())
		res.Errors = append(res.Errors, err)
	}

	res.Primary, res.Secondary = replies[0], replies[1]
	return res
}
