package watermark

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"gradwatch/pkg/logx"
)

var tidPattern = regexp.MustCompile(`last-tid=(\d+)`)

// ChatMeta is the slice of the messaging adapter the chat store needs:
// the destination channel's free-form description field.
type ChatMeta interface {
	Description(ctx context.Context) (string, error)
	SetDescription(ctx context.Context, desc string) error
}

// ChatStore keeps the watermark embedded in the channel description as
// "last-tid=<digits>". The description read at run start is cached so that
// successive writes within a run rewrite only the watermark and leave the
// rest of the description alone.
type ChatStore struct {
	meta ChatMeta
	log  logx.Logger

	desc string
	read bool
}

func NewChatStore(meta ChatMeta, log logx.Logger) *ChatStore {
	return &ChatStore{meta: meta, log: log}
}

func (s *ChatStore) Read(ctx context.Context) (int64, error) {
	desc, err := s.meta.Description(ctx)
	if err != nil {
		return Unknown, fmt.Errorf("watermark: read channel description: %w", err)
	}
	s.desc = desc
	s.read = true

	m := tidPattern.FindStringSubmatch(desc)
	if m == nil {
		return Unknown, nil
	}
	tid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Unknown, nil
	}
	return tid, nil
}

func (s *ChatStore) Write(ctx context.Context, tid int64) error {
	// An empty description has nothing to rewrite into; same guard as
	// writing before ever reading.
	if !s.read || s.desc == "" {
		return ErrNotRead
	}

	mark := fmt.Sprintf("last-tid=%d", tid)
	next := tidPattern.ReplaceAllString(s.desc, mark)
	if !tidPattern.MatchString(s.desc) {
		// First ever watermark on this channel.
		next = s.desc + "\n" + mark
	}

	if err := s.meta.SetDescription(ctx, next); err != nil {
		return fmt.Errorf("watermark: set channel description: %w", err)
	}
	s.desc = next
	s.log.Debug("watermark advanced", logx.Int64("tid", tid))
	return nil
}
