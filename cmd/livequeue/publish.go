package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roboricindustries/raycon-livequeue/pkg/config"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub/redisstream"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
	"github.com/spf13/cobra"
)

type publishFlags struct {
	id, name, department, status, defaultAgent, eventType string
	dryRun                                                bool
}

func newPublishCommand(a *app) *cobra.Command {
	var f publishFlags
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one inquiry event on the configured transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := livechat.ParseEventType(f.eventType)
			if err != nil {
				return err
			}
			ev := livechat.NewInquiryEvent(typ, f.record(time.Now().UTC()))
			if err := ev.Validate(); err != nil {
				return err
			}
			topic := livechat.PublicTopic
			if f.department != "" {
				topic = livechat.DepartmentTopic(f.department)
			}
			return a.publish(cmd.Context(), topic, ev, f.dryRun)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.eventType, "type", string(livechat.EventAdded), "event type (added, changed, removed)")
	fl.StringVar(&f.id, "id", "", "inquiry id")
	fl.StringVar(&f.name, "name", "", "visitor name")
	fl.StringVar(&f.department, "department", "", "department id, empty for the public queue")
	fl.StringVar(&f.status, "status", string(livechat.StatusQueued), "inquiry status")
	fl.StringVar(&f.defaultAgent, "default-agent", "", "default agent id")
	fl.BoolVar(&f.dryRun, "dry-run", false, "log the event instead of sending it")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (f publishFlags) record(now time.Time) livechat.InquiryRecord {
	r := livechat.InquiryRecord{
		ID:         f.id,
		Name:       f.name,
		Status:     livechat.InquiryStatus(f.status),
		Department: f.department,
		QueuedAt:   &now,
		UpdatedAt:  now,
	}
	if f.defaultAgent != "" {
		r.DefaultAgent = &livechat.DefaultAgent{AgentID: f.defaultAgent}
	}
	return r
}

func (a *app) publish(ctx context.Context, topic string, ev livechat.InquiryEvent, dryRun bool) error {
	cfg := a.cfg
	log := a.logger.With(slog.String("topic", topic), slog.String("inquiry_id", ev.ID))

	if !dryRun && cfg.Queue.Transport == config.TransportRedis {
		rdb := redisstream.Settings{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}.NewClient()
		defer rdb.Close()
		t, err := redisstream.New(ctx, rdb, cfg.Redis.ChannelPrefix, a.logger)
		if err != nil {
			return err
		}
		defer t.Close()
		if err := t.Publish(ctx, topic, ev, cfg.Producer); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		log.Info("published to redis")
		return nil
	}

	if !dryRun && cfg.Queue.Transport != config.TransportAMQP {
		return fmt.Errorf("transport %q cannot publish, use amqp or redis or --dry-run", cfg.Queue.Transport)
	}

	var pub pubsub.Publisher
	if dryRun {
		pub = pubsub.NewFallback(a.logger)
	} else {
		p, err := pubsub.NewPublisher(ctx, pubsub.ConnectionOptions{
			URL:           cfg.RabbitMQ.URL,
			RetryAttempts: cfg.RabbitMQ.RetryAttempts,
			Delay:         cfg.RabbitMQ.RetryDelay,
			Logger:        a.logger,
		}, pubsub.FirstNonEmpty(cfg.RabbitMQ.Exchange, livechat.Exchange))
		if err != nil {
			return err
		}
		pub = p
	}
	defer pub.Close()

	if err := pubsub.PublishInquiryEvent(ctx, pub, cfg.RabbitMQ.RoutingPrefix, topic, ev, cfg.Producer); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Info("published", slog.String("type", string(ev.Type)))
	return nil
}
