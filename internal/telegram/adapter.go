// Package telegram wraps telebot for the one-way broadcast this service
// does: read/write the destination channel description and send messages.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"gradwatch/pkg/logx"
	"gradwatch/pkg/pace"
)

type Config struct {
	Token string
	// Chat is a numeric chat id or an @username.
	Chat string

	// SendRatePerSec caps outbound sends; <=0 means 1/s.
	SendRatePerSec int

	// Courtesy jitter before each send and description write.
	SendPaceMin, SendPaceMax time.Duration
	MetaPaceMin, MetaPaceMax time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot  *tele.Bot
	chat *tele.Chat

	limiter  *rate.Limiter
	sendPace *pace.Sleeper
	metaPace *pace.Sleeper
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if strings.TrimSpace(cfg.Chat) == "" {
		return nil, errors.New("telegram chat is empty")
	}

	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}

	a := &Adapter{
		cfg:      cfg,
		log:      log,
		bot:      b,
		limiter:  rate.NewLimiter(rate.Limit(max(1, cfg.SendRatePerSec)), 1),
		sendPace: pace.New(cfg.SendPaceMin, cfg.SendPaceMax),
		metaPace: pace.New(cfg.MetaPaceMin, cfg.MetaPaceMax),
	}
	if a.chat, err = a.resolveChat(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Adapter) resolveChat() (*tele.Chat, error) {
	raw := strings.TrimSpace(a.cfg.Chat)
	if strings.HasPrefix(raw, "@") {
		return a.bot.ChatByUsername(raw)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.New("telegram chat must be a numeric id or @username")
	}
	return a.bot.ChatByID(id)
}

// Description fetches the destination channel's current description.
func (a *Adapter) Description(ctx context.Context) (string, error) {
	chat, err := a.resolveChat()
	if err != nil {
		return "", err
	}
	a.chat = chat
	return chat.Description, nil
}

// SetDescription rewrites the destination channel's description.
func (a *Adapter) SetDescription(ctx context.Context, desc string) error {
	if err := a.metaPace.Wait(ctx); err != nil {
		return err
	}
	return a.bot.SetGroupDescription(a.chat, desc)
}

// Send broadcasts one message to the destination channel. Link previews
// stay on and notifications are not suppressed; subscribers asked for them.
func (a *Adapter) Send(ctx context.Context, text string) error {
	if err := a.sendPace.Wait(ctx); err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := a.bot.Send(a.chat, text, &tele.SendOptions{
		DisableWebPagePreview: false,
		DisableNotification:   false,
	})
	return err
}
