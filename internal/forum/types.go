package forum

import "encoding/json"

// Thread is one forum thread as returned by the listing API.
// TIDs are assigned by the forum and increase monotonically, so they double
// as the ordering key for delivery.
type Thread struct {
	TID      int64      `json:"tid"`
	Subject  string     `json:"subject"`
	Author   string     `json:"author"`
	Dateline int64      `json:"dateline"`
	Tags     []TopicTag `json:"topic_tag"`

	// Details is filled by an enricher after listing; nil until then.
	Details Details `json:"-"`
}

type TopicTag struct {
	TagName string `json:"tagname"`
}

// UnmarshalJSON tolerates the listing occasionally carrying non-object
// entries in topic_tag; those decode to an empty tag and are skipped later.
func (t *TopicTag) UnmarshalJSON(b []byte) error {
	var obj struct {
		TagName string `json:"tagname"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil
	}
	t.TagName = obj.TagName
	return nil
}

// Detail is one label/value row scraped from a thread's detail source.
type Detail struct {
	Label string
	Value string
}

// Details preserves the order the detail source presented the rows in,
// which is the order they are rendered in messages.
type Details []Detail

// Get returns the value for label, or "" when absent.
func (d Details) Get(label string) string {
	for _, row := range d {
		if row.Label == label {
			return row.Value
		}
	}
	return ""
}
