// Package format turns the merged raw transcript into text for the
// destination app.
package format

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"flowstate/internal/config"
)

// Hints describe where the text is going.
type Hints struct {
	App      string
	Category Category
}

// Output is a formatting result.
type Output struct {
	Text     string
	Category Category
	UsedLLM  bool
	Took     time.Duration
}

// Rewriter is the optional LLM path.
type Rewriter interface {
	Rewrite(ctx context.Context, text string, hints Hints) (string, error)
}

// Formatter picks a category, tries the LLM where configured and falls back
// to rules.
type Formatter struct {
	profiles *Profiles
	llm      Rewriter
	warm     func(context.Context) error
	llmCats  map[Category]bool
	timeout  time.Duration
	logger   logrus.FieldLogger
}

// New builds a Formatter from config. A missing API key just disables the
// LLM path.
func New(cfg *config.Config, logger logrus.FieldLogger) *Formatter {
	f := &Formatter{
		profiles: NewProfiles(cfg),
		llmCats:  map[Category]bool{},
		timeout:  config.Seconds(cfg.Formatter.TimeoutSec),
		logger:   logger,
	}
	for _, c := range cfg.Formatter.LLMCategories {
		if cat, err := ParseCategory(c); err == nil {
			f.llmCats[cat] = true
		}
	}
	if !cfg.Formatter.Enabled {
		return f
	}
	llm, err := NewLLM(cfg)
	switch {
	case errors.Is(err, ErrNoAPIKey):
		logger.Debug("formatter: no api key, rule-based formatting only")
	case err != nil:
		logger.Warnf("formatter: %v", err)
	default:
		f.llm = llm
		f.warm = llm.Warmup
	}
	return f
}

// WithRewriter swaps the LLM path, for tests and alternate providers.
func (f *Formatter) WithRewriter(r Rewriter, categories ...Category) *Formatter {
	f.llm = r
	f.warm = nil
	if len(categories) > 0 {
		f.llmCats = map[Category]bool{}
		for _, c := range categories {
			f.llmCats[c] = true
		}
	}
	return f
}

// Profiles returns the app mapping in use.
func (f *Formatter) Profiles() *Profiles { return f.profiles }

// Resolve fills in the category from the app when the caller gave none.
func (f *Formatter) Resolve(h Hints) Hints {
	if h.Category == "" {
		h.Category = f.profiles.Lookup(h.App)
	}
	return h
}

// Format never fails. Empty input stays empty.
func (f *Formatter) Format(ctx context.Context, raw string, h Hints) Output {
	start := time.Now()
	h = f.Resolve(h)
	out := Output{Category: h.Category}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}
	if f.llm != nil && f.llmCats[h.Category] {
		lctx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			lctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
		text, err := f.llm.Rewrite(lctx, raw, h)
		if err == nil {
			out.Text, out.UsedLLM, out.Took = text, true, time.Since(start)
			return out
		}
		f.logger.Warnf("formatter llm failed, using rules: %v", err)
	}
	out.Text = Rules(raw, h.Category)
	out.Took = time.Since(start)
	return out
}

// Warmup pings the LLM endpoint when one is configured. Errors are returned
// for logging only.
func (f *Formatter) Warmup(ctx context.Context) error {
	if f.warm == nil {
		return nil
	}
	return f.warm(ctx)
}
