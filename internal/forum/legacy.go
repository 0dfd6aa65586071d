package forum

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ThreadDetailsLegacy scrapes the thread's public HTML page instead of the
// options API. The page sits behind Cloudflare and gets blocked far more
// often than the API, so this is the fallback strategy, not the default.
func (c *Client) ThreadDetailsLegacy(ctx context.Context, tid int64) (Details, error) {
	if err := c.detailPace.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/thread-%d-1-1.html", c.cfg.LegacyURL, tid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("forum: thread %d page: http %d", tid, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("forum: thread %d page: parse: %w", tid, err)
	}

	table := doc.Find(`table[summary="分类信息"]`).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("forum: thread %d page: detail table not found", tid)
	}

	var details Details
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSuffix(strings.TrimSpace(row.Find("th").First().Text()), ":")
		value := strings.TrimSpace(row.Find("td").First().Text())
		if label == "" || value == "" || lockedValue(value) {
			return
		}
		details = append(details, Detail{Label: label, Value: value})
	})
	return details, nil
}
