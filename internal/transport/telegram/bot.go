package telegram

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Bot is the telebot glue around Commands.
type Bot struct {
	bot  *tele.Bot
	cmds *Commands
	log  *zap.Logger
}

func New(cfg Config, cmds *Commands, log *zap.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Error("telegram handler", zap.Error(err))
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return &Bot{bot: b, cmds: cmds, log: log}, nil
}

// Sender exposes the underlying client for NewSink.
func (b *Bot) Sender() *tele.Bot {
	return b.bot
}

// Run registers handlers and polls until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	reply := func(c tele.Context, texts []string) error {
		for _, t := range texts {
			if err := c.Send(t); err != nil {
				return err
			}
		}
		return nil
	}

	b.bot.Handle("/start", func(c tele.Context) error {
		return c.Send(b.cmds.Help())
	})
	b.bot.Handle("/help", func(c tele.Context) error {
		return c.Send(b.cmds.Help())
	})
	b.bot.Handle("/list", func(c tele.Context) error {
		return reply(c, b.cmds.List(ctx, c.Chat().ID))
	})
	b.bot.Handle("/add", func(c tele.Context) error {
		return reply(c, b.cmds.Add(ctx, c.Chat().ID, c.Args()))
	})
	b.bot.Handle("/delete", func(c tele.Context) error {
		return reply(c, b.cmds.Delete(ctx, c.Chat().ID, c.Args()))
	})
	// всё остальное, включая команды с опечатками
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		return reply(c, b.cmds.Dispatch(ctx, c.Chat().ID, c.Text()))
	})
	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || c.Chat() == nil {
			return nil
		}
		text := b.cmds.Callback(ctx, c.Chat().ID, cb.Data)
		if err := c.Respond(); err != nil {
			b.log.Warn("answer callback", zap.Error(err))
		}
		return c.Edit(text)
	})

	go b.bot.Start()
	b.log.Info("telegram bot started", zap.String("username", b.bot.Me.Username))

	<-ctx.Done()
	b.bot.Stop()
	return nil
}
