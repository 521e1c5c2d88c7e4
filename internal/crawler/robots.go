package crawler

import (
	"context"
	"net/http"

	"github.com/temoto/robotstxt"

	"myrient-search/internal/logging"
)

// robotsAllowed checks the host's robots.txt before a crawl starts. A
// fetch failure is treated as permission to proceed: the archive is a
// public mirror and an unreachable robots.txt should not wedge the sync
// schedule. An explicit Disallow is honored.
func (c *Crawler) robotsAllowed(ctx context.Context) (bool, error) {
	robotsURL := c.base.Scheme + "://" + c.base.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return true, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return true, err
	}

	group := robots.FindGroup(c.userAgent)
	allowed := group.Test(c.base.Path)
	if !allowed {
		logging.Warn("robots.txt disallows %q for agent %q", c.base.Path, c.userAgent)
	}
	return allowed, nil
}
