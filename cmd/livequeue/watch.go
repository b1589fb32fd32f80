package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/roboricindustries/raycon-livequeue/pkg/config"
	"github.com/roboricindustries/raycon-livequeue/pkg/livechatapi"
	"github.com/roboricindustries/raycon-livequeue/pkg/notify"
	"github.com/roboricindustries/raycon-livequeue/pkg/preferences"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub/redisstream"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub/wsstream"
	"github.com/roboricindustries/raycon-livequeue/pkg/queue"
	"github.com/roboricindustries/raycon-livequeue/pkg/schemas/notifications"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// streamTransport is a Transport that owns a receive loop.
type streamTransport interface {
	pubsub.Transport
	Run(ctx context.Context) error
	Close() error
}

// idleTransport runs the in-process transport; nothing publishes into it
// besides the process itself.
type idleTransport struct{ *pubsub.MemoryTransport }

func (idleTransport) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (idleTransport) Close() error { return nil }

func newWatchCommand(a *app) *cobra.Command {
	var (
		agentID        string
		reportInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Activate the queue synchronizer for an agent and log queue changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if agentID == "" {
				agentID = a.cfg.API.UserID
			}
			if agentID == "" {
				return errors.New("--agent or api.user_id is required")
			}
			return a.watch(cmd.Context(), agentID, reportInterval)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent user id (defaults to api.user_id)")
	cmd.Flags().DurationVar(&reportInterval, "report-interval", 30*time.Second, "how often to log the queue state, 0 disables")
	return cmd
}

func (a *app) watch(ctx context.Context, agentID string, reportInterval time.Duration) error {
	cfg, log := a.cfg, a.logger.With("agent_id", agentID)

	api, err := livechatapi.New(cfg.API.BaseURL,
		livechatapi.WithAuth(cfg.API.UserID, cfg.API.Token),
		livechatapi.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		livechatapi.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Queue.Transport == config.TransportRedis || cfg.Sound.PreferencesFromRedis {
		rdb = redisstream.Settings{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}.NewClient()
		defer rdb.Close()
	}

	transport, err := a.openTransport(ctx, rdb)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", cfg.Queue.Transport, err)
	}
	defer transport.Close()

	sink, closeSink, err := a.openSink(ctx, agentID)
	if err != nil {
		return err
	}
	defer closeSink()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	syncer, err := queue.New(queue.Options{
		Transport:    transport,
		Backend:      api,
		Preferences:  a.preferences(rdb),
		Presence:     api,
		Sink:         sink,
		Settings:     queue.StaticSettings{MaxIncoming: cfg.Queue.PoolMaxIncoming},
		FetchTimeout: cfg.Queue.FetchTimeout,
		Logger:       a.logger,
		Metrics:      queue.NewMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer syncer.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return transport.Run(ctx) })
	if cfg.Metrics.Addr != "" {
		eg.Go(func() error { return serveMetrics(ctx, cfg.Metrics.Addr, reg, log) })
	}

	sub, err := syncer.Activate(ctx, agentID)
	if err != nil {
		cancel()
		_ = eg.Wait()
		return fmt.Errorf("activate: %w", err)
	}
	defer sub.Close()
	log.Info("watching queue", slog.String("state", syncer.State().String()), slog.Any("departments", syncer.Departments()))

	if reportInterval > 0 {
		eg.Go(func() error { return report(ctx, syncer, reportInterval, log) })
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutting down")
		return nil
	}
	return err
}

func (a *app) openTransport(ctx context.Context, rdb *redis.Client) (streamTransport, error) {
	cfg := a.cfg
	switch cfg.Queue.Transport {
	case config.TransportAMQP:
		return pubsub.NewAMQPTransport(ctx, pubsub.RabbitMQConfig{
			URL:              cfg.RabbitMQ.URL,
			Exchange:         cfg.RabbitMQ.Exchange,
			RoutingPrefix:    cfg.RabbitMQ.RoutingPrefix,
			ConsumerPrefetch: cfg.RabbitMQ.Prefetch,
			RetryAttempts:    cfg.RabbitMQ.RetryAttempts,
			RetryDelay:       cfg.RabbitMQ.RetryDelay,
			DeadLetter: pubsub.DeadLetterConfig{
				Exchange: cfg.RabbitMQ.DeadLetterExchange,
				Queue:    cfg.RabbitMQ.DeadLetterQueue,
			},
		}, a.logger)
	case config.TransportRedis:
		return redisstream.New(ctx, rdb, cfg.Redis.ChannelPrefix, a.logger)
	case config.TransportWS:
		header := http.Header{}
		if cfg.API.Token != "" {
			header.Set("X-User-Id", cfg.API.UserID)
			header.Set("X-Auth-Token", cfg.API.Token)
		}
		return wsstream.Dial(ctx, cfg.WebSocket.URL, header, a.logger)
	case config.TransportMemory:
		return idleTransport{pubsub.NewMemoryTransport(a.logger)}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Queue.Transport)
}

func (a *app) openSink(ctx context.Context, agentID string) (notify.Sink, func(), error) {
	cfg := a.cfg
	if cfg.Sound.Sink != "amqp" {
		return notify.LogSink{Logger: a.logger}, func() {}, nil
	}
	pub, err := pubsub.NewPublisher(ctx, pubsub.ConnectionOptions{
		URL:           cfg.RabbitMQ.URL,
		RetryAttempts: cfg.RabbitMQ.RetryAttempts,
		Delay:         cfg.RabbitMQ.RetryDelay,
		Logger:        a.logger,
	}, pubsub.FirstNonEmpty(cfg.RabbitMQ.NotificationExchange, notifications.Exchange))
	if err != nil {
		a.logger.Warn("notification publisher unavailable, logging sounds instead", slog.Any("error", err))
		pub = pubsub.NewFallback(a.logger)
	}
	sink, err := notify.NewPublisherSink(pub, agentID, cfg.Producer)
	if err != nil {
		pub.Close()
		return nil, nil, err
	}
	return sink, func() { _ = pub.Close() }, nil
}

func (a *app) preferences(rdb *redis.Client) preferences.Provider {
	fallback := map[string]string{}
	if a.cfg.Sound.DefaultSound != "" {
		fallback[preferences.KeyNewRoomNotification] = a.cfg.Sound.DefaultSound
	}
	if a.cfg.Sound.DefaultVolume != "" {
		fallback[preferences.KeySoundVolume] = a.cfg.Sound.DefaultVolume
	}
	d := preferences.Defaults{Fallback: fallback}
	if a.cfg.Sound.PreferencesFromRedis && rdb != nil {
		d.Provider = preferences.NewRedis(rdb, a.cfg.Redis.PreferencesPrefix)
	}
	return d
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info("serving metrics", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return ctx.Err()
}

func report(ctx context.Context, syncer *queue.Synchronizer, every time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poolMax, count := syncer.PoolStatus()
			log.Info("queue",
				slog.String("state", syncer.State().String()),
				slog.Int("cached", len(syncer.Inquiries())),
				slog.Int("pool_max", poolMax),
				slog.Int("pool_count", count),
			)
		}
	}
}
