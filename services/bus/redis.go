package bussvc

import (
	"context"
	"encoding/json"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/chat"
)

// redisBus relays chat messages between API instances over a redis pub/sub channel.
type redisBus struct {
	client  *redis.Client
	channel string
	logger  core.Logger
}

var _ chat.Bus = (*redisBus)(nil)

func NewRedisBus(ctx context.Context, conf *core.Config, logger core.Logger) (chat.Bus, error) {
	err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.Redis.Addr, "RedisAddr"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "configuring redis bus")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "pinging redis at %s", conf.Redis.Addr)
	}

	channel := conf.Redis.Channel
	if channel == "" {
		channel = "chat"
	}
	return &redisBus{client: client, channel: channel, logger: logger}, nil
}

func (b *redisBus) Publish(ctx context.Context, msg chat.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encoding chat message")
	}
	return errors.Wrap(b.client.Publish(ctx, b.channel, payload).Err(), "publishing to redis")
}

func (b *redisBus) StartForwarder(ctx context.Context, onMsg func(msg chat.Message)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}

	sub := b.client.Subscribe(ctx, b.channel)
	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.Wrapf(err, "subscribing to %s", b.channel)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg chat.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Warn("dropping malformed chat message", err, map[string]interface{}{"channel": m.Channel})
					continue
				}
				onMsg(msg)
			}
		}
	}()
	return nil
}

func (b *redisBus) Close() error {
	return b.client.Close()
}
