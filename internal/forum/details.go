package forum

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Detail rows whose value carries one of these markers are hidden behind
// the forum's paywall; they are dropped rather than rendered as teasers.
var lockMarkers = []string{"隐藏内容", "积分不足", "解锁阅读"}

func lockedValue(v string) bool {
	for _, m := range lockMarkers {
		if strings.Contains(v, m) {
			return true
		}
	}
	return false
}

// OptionTable is one predefined field definition from /types/164/options.
// Choices, when present, map stored raw values to display values and come
// as [raw, display] pairs.
type OptionTable struct {
	OptionID int      `json:"optionid"`
	Title    string   `json:"title"`
	Choices  [][2]any `json:"choices"`
}

func (t OptionTable) choice(value string) (string, bool) {
	for _, pair := range t.Choices {
		if asString(pair[0]) == value {
			return asString(pair[1]), true
		}
	}
	return "", false
}

type optionTablesResponse struct {
	Errno   int           `json:"errno"`
	Options []OptionTable `json:"options"`
}

func (c *Client) optionTables(ctx context.Context) ([]OptionTable, error) {
	if c.tablesLoaded {
		return c.tables, nil
	}
	var out optionTablesResponse
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/types/164/options", &out); err != nil {
		return nil, err
	}
	if out.Errno != 0 {
		return nil, fmt.Errorf("forum: option tables: errno %d", out.Errno)
	}
	c.tables = out.Options
	c.tablesLoaded = true
	return c.tables, nil
}

func (c *Client) findTable(tables []OptionTable, id int) *OptionTable {
	for i := range tables {
		if tables[i].OptionID == id {
			return &tables[i]
		}
	}
	return nil
}

type threadOptionsResponse struct {
	Errno   int `json:"errno"`
	Options []struct {
		OptionID int `json:"optionid"`
		Value    any `json:"value"`
	} `json:"options"`
}

// ThreadDetails pulls a thread's structured detail fields from the options
// API and joins them against the predefined option tables. Raw values are
// mapped through the table's choices when it has any; an unmapped raw value
// falls back to itself. Locked rows are dropped.
func (c *Client) ThreadDetails(ctx context.Context, tid int64) (Details, error) {
	if err := c.detailPace.Wait(ctx); err != nil {
		return nil, err
	}

	tables, err := c.optionTables(ctx)
	if err != nil {
		return nil, err
	}

	var out threadOptionsResponse
	u := fmt.Sprintf("%s/threads/%d/options", c.cfg.BaseURL, tid)
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, err
	}
	if out.Errno != 0 {
		return nil, fmt.Errorf("forum: thread %d options: errno %d", tid, out.Errno)
	}

	details := make(Details, 0, len(out.Options))
	for _, opt := range out.Options {
		value := strings.Trim(asString(opt.Value), " |")
		table := c.findTable(tables, opt.OptionID)
		if table == nil || value == "" {
			continue
		}
		if mapped, ok := table.choice(value); ok {
			value = mapped
		}
		if lockedValue(value) {
			continue
		}
		details = append(details, Detail{Label: table.Title, Value: value})
	}
	return details, nil
}

// asString renders an API value the way the app presents it: numbers
// without a fractional part lose the decimal point.
func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == math.Trunc(s) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(v)
	}
}
