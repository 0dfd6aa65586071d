// Package notify renders forum threads into broadcast messages.
package notify

import (
	"fmt"
	"strings"
	"time"

	"gradwatch/internal/forum"
)

const (
	permalinkFormat = "https://www.1point3acres.com/bbs/thread-%d-1-1.html"
	defaultTimezone = "Asia/Shanghai"

	// resultLabel is the detail field that drives the leading glyph.
	resultLabel = "申请结果"
	dateFormat  = "2006-01-02"
)

var resultGlyphs = map[string]string{
	"Offer":   "🎉",
	"AD小奖":    "✅",
	"AD无奖":    "✅",
	"Reject":  "🚫",
	"Waiting": "⏳",
}

const defaultGlyph = "📖"

type Formatter struct {
	loc *time.Location
}

// NewFormatter builds a formatter rendering dates in the given IANA
// timezone; empty means the forum's home timezone.
func NewFormatter(tz string) (*Formatter, error) {
	if strings.TrimSpace(tz) == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("notify: load timezone %q: %w", tz, err)
	}
	return &Formatter{loc: loc}, nil
}

// Format renders one thread:
//
//	<glyph> <subject>
//	* <label>: <value>      (per detail row, source order)
//	#<author> <date>
//	#<tag>                  (per tag, spaces as underscores)
//	<permalink>
func (f *Formatter) Format(t forum.Thread) string {
	lines := make([]string, 0, len(t.Details)+len(t.Tags)+3)

	glyph := resultGlyphs[t.Details.Get(resultLabel)]
	if glyph == "" {
		glyph = defaultGlyph
	}
	lines = append(lines, glyph+" "+t.Subject)

	for _, d := range t.Details {
		lines = append(lines, fmt.Sprintf("* %s: %s", d.Label, d.Value))
	}

	date := time.Unix(t.Dateline, 0).In(f.loc).Format(dateFormat)
	lines = append(lines, fmt.Sprintf("#%s %s", t.Author, date))

	for _, tag := range t.Tags {
		name := strings.TrimSpace(tag.TagName)
		if name == "" {
			continue
		}
		lines = append(lines, "#"+strings.ReplaceAll(name, " ", "_"))
	}

	lines = append(lines, fmt.Sprintf(permalinkFormat, t.TID))
	return strings.Join(lines, "\n")
}
