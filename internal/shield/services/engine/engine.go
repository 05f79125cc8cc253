// Package engine implements the access-control decision engine: it composes
// the static lists, the override store, and allowlist precedence into a
// single verdict per navigation or page scan.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/domain"
)

// Engine classifies candidate navigations and page content.
type Engine struct {
	policy           PolicyProvider
	overrides        Overrides
	stats            StatsSink
	clock            clock.Clock
	logger           log.Logger
	internalPrefixes []string
}

// Options collects the engine's collaborators.
type Options struct {
	Policy    PolicyProvider
	Overrides Overrides
	Stats     StatsSink
	Clock     clock.Clock
	Logger    log.Logger
	// InternalPrefixes are URL prefixes belonging to the engine's own pages
	// (block page, options, popup). They are always allowed so a redirect to
	// the block page can never itself be redirected.
	InternalPrefixes []string
}

// New constructs an Engine.
func New(opts Options) *Engine {
	return &Engine{
		policy:           opts.Policy,
		overrides:        opts.Overrides,
		stats:            opts.Stats,
		clock:            opts.Clock,
		logger:           opts.Logger,
		internalPrefixes: opts.InternalPrefixes,
	}
}

// ClassifyRequest evaluates one navigation attempt. Precedence, in order:
// kill switch, internal pages, allowlist, active domain override, blocklist.
// A policy read failure is returned as an error; the caller fails closed
// rather than rendering the page.
func (e *Engine) ClassifyRequest(ctx context.Context, rawURL string) (domain.Verdict, error) {
	view, err := e.policy.Current(ctx)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("evaluating policy: %w", err)
	}

	if !view.Enabled() {
		return domain.Allow(), nil
	}

	for _, p := range e.internalPrefixes {
		if strings.HasPrefix(rawURL, p) {
			return domain.Allow(), nil
		}
	}

	host := hostnameOf(rawURL)
	if host == "" {
		// A URL with no extractable hostname cannot reach the browsing
		// surface at this layer; treat it as non-matching.
		return domain.Allow(), nil
	}

	if entry, ok := view.Allowed(host); ok {
		e.logger.Debug(map[string]any{"host": host, "entry": entry}, "Allowlist hit")
		return domain.Allow(), nil
	}

	if e.overrides.IsActive(domain.RuleDomain, host, e.clock.Now()) {
		e.logger.Debug(map[string]any{"host": host}, "Active override, allowing temporarily")
		return domain.AllowTemporarily(host), nil
	}

	if entry, ok := view.Blocked(host); ok {
		e.recordBlock(ctx, domain.RuleDomain, entry)
		return domain.RedirectDomain(host, entry), nil
	}

	return domain.Allow(), nil
}

// ScanPage scans page text against the keyword list for the page at rawURL.
// Allowlist membership of the page's domain halts scanning entirely. The
// first keyword that matches as a whole word and is not suppressed by an
// active keyword override wins; scanning continues past suppressed matches.
// The caller must act on a redirect verdict at most once per page load.
func (e *Engine) ScanPage(ctx context.Context, rawURL, pageText string) (domain.Verdict, error) {
	view, err := e.policy.Current(ctx)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("evaluating policy: %w", err)
	}

	if !view.Enabled() {
		return domain.Allow(), nil
	}

	keywords := view.Keywords()
	if len(keywords) == 0 {
		return domain.Allow(), nil
	}

	if host := hostnameOf(rawURL); host != "" {
		if entry, ok := view.Allowed(host); ok {
			e.logger.Debug(map[string]any{"host": host, "entry": entry}, "Allowlisted page, skipping content scan")
			return domain.Allow(), nil
		}
	}

	now := e.clock.Now()
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if !domain.KeywordMatches(kw, pageText) {
			continue
		}
		if e.overrides.IsActive(domain.RuleKeyword, kw, now) {
			e.logger.Debug(map[string]any{"keyword": kw}, "Keyword match suppressed by override")
			continue
		}
		e.recordBlock(ctx, domain.RuleKeyword, kw)
		return domain.RedirectKeyword(kw), nil
	}

	return domain.Allow(), nil
}

// ClassifyKeyword evaluates a single keyword against page text, consulting
// the override store before reporting the match as actionable. It returns
// whether the keyword is an actionable match and the block reason if so.
func (e *Engine) ClassifyKeyword(ctx context.Context, keyword, pageText string) (bool, string) {
	if !domain.KeywordMatches(keyword, pageText) {
		return false, ""
	}
	if e.overrides.IsActive(domain.RuleKeyword, keyword, e.clock.Now()) {
		return false, ""
	}
	return true, domain.RedirectKeyword(strings.TrimSpace(keyword)).Reason
}

// recordBlock bumps the counters for a block that is about to fire. A stats
// write failure is logged and must not flip the verdict.
func (e *Engine) recordBlock(ctx context.Context, kind domain.RuleKind, value string) {
	if e.stats == nil {
		return
	}
	if err := e.stats.RecordBlock(ctx, kind, value); err != nil {
		e.logger.Warn(map[string]any{
			"error": err,
			"kind":  kind.String(),
			"value": value,
		}, "Failed to record block counter")
	}
}

// hostnameOf extracts the lowercase hostname of a URL, "" when absent.
func hostnameOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return domain.CanonicalHost(u.Hostname())
}
