package parser

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"ReviewInsights/internal/config"
	"ReviewInsights/internal/domain"
	"ReviewInsights/internal/ports"
	"ReviewInsights/internal/scanner"
)

// StrategySource implements ReviewSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	maxPages int
	logger   *zap.SugaredLogger
}

var _ ports.ReviewSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, maxPages int, log *zap.SugaredLogger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		maxPages: maxPages,
		logger:   log,
	}
}

// Fetch picks the site whose hosts match the locator and runs its scanner.
func (s *StrategySource) Fetch(ctx context.Context, locator string) (domain.Dataset, error) {
	if s.registry == nil {
		return nil, errors.New("scanner registry is not configured")
	}

	site, err := s.resolveSite(locator)
	if err != nil {
		return nil, err
	}
	s.debug("process site", "site", site.Name, "scanner", site.Scanner, "locator", locator)

	strategy, err := s.registry.Resolve(site.Scanner)
	if err != nil {
		return nil, errors.Wrapf(err, "site %s", site.Name)
	}

	results, err := strategy.Scan(ctx, scanner.Request{
		Locator:  locator,
		SiteName: site.Name,
		MaxPages: s.maxPages,
		Options:  site.Options,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan site %s", site.Name)
	}

	s.debug("site produced reviews", "site", site.Name, "count", len(results))
	return results, nil
}

// resolveSite matches the locator host against each site's hosts (subdomains included).
// A site without hosts is the fallback.
func (s *StrategySource) resolveSite(locator string) (config.SiteConfig, error) {
	parsed, err := url.Parse(strings.TrimSpace(locator))
	if err != nil || parsed.Hostname() == "" {
		return config.SiteConfig{}, errors.Newf("invalid locator %q", locator)
	}
	host := strings.ToLower(parsed.Hostname())

	var fallback *config.SiteConfig
	for i, site := range s.sites {
		if len(site.Hosts) == 0 && fallback == nil {
			fallback = &s.sites[i]
			continue
		}
		for _, h := range site.Hosts {
			h = strings.ToLower(h)
			if host == h || strings.HasSuffix(host, "."+h) {
				return site, nil
			}
		}
	}

	if fallback != nil {
		return *fallback, nil
	}
	return config.SiteConfig{}, errors.Newf("no site configured for host %s", host)
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debugw(msg, args...)
	}
}
