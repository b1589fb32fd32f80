// Package queue keeps an agent's local inquiry queue in sync with the
// livechat backend.
//
// A Synchronizer listens on one topic per enabled department plus the public
// topic, applies pushed added/changed/removed events to an inquirystore.Store,
// backfills the store from the REST snapshot once listening, and plays the
// new-inquiry sound when the pool cap policy allows it.
//
// All cache mutation happens under one mutex, so events are applied in the
// order the transport delivers them. Fetches run outside the lock; an
// activation that was replaced while a fetch was in flight returns
// ErrSuperseded and leaves no state behind.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/roboricindustries/raycon-livequeue/pkg/inquirystore"
	"github.com/roboricindustries/raycon-livequeue/pkg/notify"
	"github.com/roboricindustries/raycon-livequeue/pkg/preferences"
	"github.com/roboricindustries/raycon-livequeue/pkg/pubsub"
	livechat "github.com/roboricindustries/raycon-livequeue/pkg/schemas/livechat/v1"
)

var (
	ErrNotActive  = errors.New("queue: synchronizer is not active")
	ErrSuperseded = errors.New("queue: activation superseded")
)

const DefaultFetchTimeout = 10 * time.Second

// Backend is the pull side: routing config, agent departments and the
// queued inquiry snapshot.
type Backend interface {
	GetRoutingConfig(ctx context.Context) (livechat.RoutingConfig, error)
	AgentDepartments(ctx context.Context, userID string, enabledOnly bool) ([]livechat.AgentDepartment, error)
	QueuedInquiries(ctx context.Context) ([]livechat.InquiryRecord, error)
}

// Presence reports the livechat status of an agent.
type Presence interface {
	AgentStatus(ctx context.Context, userID string) (livechat.AgentStatus, error)
}

// StaticPresence reports the same status for every agent.
type StaticPresence livechat.AgentStatus

func (p StaticPresence) AgentStatus(context.Context, string) (livechat.AgentStatus, error) {
	return livechat.AgentStatus(p), nil
}

type Settings interface {
	// PoolMaxIncoming is the pool cap. Zero means no cap.
	PoolMaxIncoming() int
}

type StaticSettings struct {
	MaxIncoming int
}

func (s StaticSettings) PoolMaxIncoming() int { return s.MaxIncoming }

type Options struct {
	Transport pubsub.Transport
	Backend   Backend

	// Store defaults to a fresh inquirystore.Store.
	Store       *inquirystore.Store
	Preferences preferences.Provider
	// Presence nil treats the agent as available.
	Presence Presence
	// Sink nil disables notifications.
	Sink     notify.Sink
	Settings Settings

	// FetchTimeout bounds each activation fetch. Zero uses DefaultFetchTimeout,
	// negative disables the timeout.
	FetchTimeout time.Duration
	Logger       *slog.Logger
	Metrics      *Metrics
}

type Synchronizer struct {
	transport    pubsub.Transport
	backend      Backend
	store        *inquirystore.Store
	prefs        preferences.Provider
	presence     Presence
	sink         notify.Sink
	settings     Settings
	fetchTimeout time.Duration
	log          *slog.Logger
	metrics      *Metrics

	mu     sync.Mutex
	state  State
	gen    uint64
	userID string
	set    SubscriptionSet
	sub    *Subscription
	cancel context.CancelFunc
	// removals seen while Activating, by inquiry id; the snapshot must not
	// bring these records back.
	tombstones map[string]time.Time
}

var _ io.Closer = (*Synchronizer)(nil)

func New(opts Options) (*Synchronizer, error) {
	if opts.Transport == nil {
		return nil, errors.New("queue: transport is required")
	}
	if opts.Backend == nil {
		return nil, errors.New("queue: backend is required")
	}
	if opts.Store == nil {
		opts.Store = inquirystore.New()
	}
	if opts.Settings == nil {
		opts.Settings = StaticSettings{}
	}
	switch {
	case opts.FetchTimeout == 0:
		opts.FetchTimeout = DefaultFetchTimeout
	case opts.FetchTimeout < 0:
		opts.FetchTimeout = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Synchronizer{
		transport:    opts.Transport,
		backend:      opts.Backend,
		store:        opts.Store,
		prefs:        opts.Preferences,
		presence:     opts.Presence,
		sink:         opts.Sink,
		settings:     opts.Settings,
		fetchTimeout: opts.FetchTimeout,
		log:          logger.With("component", "queue"),
		metrics:      opts.Metrics,
	}, nil
}

// Activate starts synchronizing the queue of userID. Any previous activation
// is torn down before the first fetch starts.
//
// When the backend routes inquiries automatically the synchronizer stays
// inactive and Activate returns an empty Subscription.
func (s *Synchronizer) Activate(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, errors.New("queue: user id is empty")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gen := s.begin(userID, cancel)
	log := s.log.With("op", "activate", slog.String("user_id", userID))
	log.Debug("activating")

	sub, err := s.subscribe(ctx, gen, userID, log)
	switch {
	case errors.Is(err, ErrSuperseded):
		s.metrics.activation("superseded")
		log.Info("activation superseded")
		return nil, err
	case err != nil:
		s.abort(gen)
		s.metrics.activation("error")
		log.Error("activation failed", slog.Any("error", err))
		return nil, err
	case sub == nil:
		s.abort(gen)
		s.metrics.activation("auto_assign")
		log.Info("auto assignment enabled, queue not synchronized")
		return newSubscription(nil), nil
	}
	s.metrics.activation("ok")
	return sub, nil
}

func (s *Synchronizer) begin(userID string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
	s.gen++
	s.state = Activating
	s.userID = userID
	s.cancel = cancel
	s.tombstones = map[string]time.Time{}
	return s.gen
}

// abort tears down activation gen if nothing replaced it.
func (s *Synchronizer) abort(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.teardownLocked()
	}
}

func (s *Synchronizer) subscribe(ctx context.Context, gen uint64, userID string, log *slog.Logger) (*Subscription, error) {
	cfg, err := fetch(ctx, s.fetchTimeout, s.backend.GetRoutingConfig)
	if err != nil {
		return nil, s.fetchErr(gen, "get routing config", err)
	}
	if cfg.AutoAssignAgent {
		return nil, nil
	}

	deps, err := fetch(ctx, s.fetchTimeout, func(ctx context.Context) ([]livechat.AgentDepartment, error) {
		return s.backend.AgentDepartments(ctx, userID, true)
	})
	if err != nil {
		return nil, s.fetchErr(gen, "get agent departments", err)
	}

	sub, err := s.listen(gen, deps)
	if err != nil {
		return nil, err
	}

	records, err := fetch(ctx, s.fetchTimeout, s.backend.QueuedInquiries)
	if err != nil {
		return nil, s.fetchErr(gen, "get queued inquiries", err)
	}
	cached, err := s.backfill(gen, records)
	if err != nil {
		return nil, err
	}
	log.Info("activated",
		slog.Int("departments", len(deps)),
		slog.Int("backfill", len(records)),
		slog.Int("cached", cached),
	)
	return sub, nil
}

func (s *Synchronizer) fetchErr(gen uint64, what string, err error) error {
	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if !current {
		return ErrSuperseded
	}
	return fmt.Errorf("%s: %w", what, err)
}

// listen registers the department and public listeners of activation gen.
func (s *Synchronizer) listen(gen uint64, deps []livechat.AgentDepartment) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return nil, ErrSuperseded
	}

	set := NewSubscriptionSet()
	for _, d := range deps {
		set.Add(d.DepartmentID)
	}
	topics := make([]string, 0, set.Len()+1)
	for _, d := range set.Slice() {
		topics = append(topics, livechat.DepartmentTopic(d))
	}
	topics = append(topics, livechat.PublicTopic)

	sub := newSubscription(s.release)
	h := func(ctx context.Context, ev livechat.InquiryEvent) {
		if err := s.process(ctx, gen, ev); err != nil && !errors.Is(err, ErrNotActive) {
			s.log.Error("inquiry event failed",
				slog.String("type", string(ev.Type)),
				slog.String("inquiry_id", ev.ID),
				slog.Any("error", err),
			)
		}
	}
	for _, topic := range topics {
		id, err := s.transport.On(topic, h)
		if err != nil {
			if derr := sub.dispose(); derr != nil {
				s.log.Warn("remove listeners", slog.Any("error", derr))
			}
			return nil, fmt.Errorf("listen on %s: %w", topic, err)
		}
		sub.add(listenerHandle{transport: s.transport, topic: topic, id: id})
	}
	s.set = set
	s.sub = sub
	return sub, nil
}

// backfill merges the snapshot into the cache. Cached records that are newer
// than the snapshot are kept, and the alert flag of cached records survives.
// Records removed by a live event at or after their snapshot time stay out.
func (s *Synchronizer) backfill(gen uint64, records []livechat.InquiryRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return 0, ErrSuperseded
	}
	for _, r := range records {
		if !r.IsQueued() || !s.set.Admits(r.Department) {
			continue
		}
		if at, ok := s.tombstones[r.ID]; ok && (at.IsZero() || !at.Before(r.UpdatedAt)) {
			s.log.Debug("skip backfill record removed during activation", slog.String("inquiry_id", r.ID))
			continue
		}
		r.Alert = false
		if cur, ok := s.store.Get(r.ID); ok {
			r.Alert = cur.Alert
		}
		if _, err := s.store.Upsert(r, inquirystore.UpsertOptions{RejectStale: true}); err != nil {
			s.log.Warn("skip backfill record", slog.String("inquiry_id", r.ID), slog.Any("error", err))
		}
	}
	s.state = Active
	s.tombstones = nil
	n := s.store.Len()
	s.metrics.setCached(n)
	return n, nil
}

// release is the Close hook of subscriptions handed out by Activate.
func (s *Synchronizer) release(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == sub {
		s.teardownLocked()
	}
}

// Deactivate removes all listeners and clears the cache and the department
// set. It is a no-op when already inactive.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Inactive && s.sub == nil {
		return
	}
	s.log.Info("deactivating", slog.String("user_id", s.userID))
	s.teardownLocked()
}

func (s *Synchronizer) Close() error {
	s.Deactivate()
	return nil
}

func (s *Synchronizer) teardownLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.sub != nil {
		if err := s.sub.dispose(); err != nil {
			s.log.Warn("remove listeners", slog.Any("error", err))
		}
		s.sub = nil
	}
	s.store.RemoveWhere(inquirystore.Filter{})
	s.set.Clear()
	s.tombstones = nil
	s.state = Inactive
	s.userID = ""
	s.metrics.setCached(s.store.Len())
}

// OnEvent applies ev to the cache of the current activation.
func (s *Synchronizer) OnEvent(ctx context.Context, ev livechat.InquiryEvent) error {
	s.mu.Lock()
	gen, active := s.gen, s.sub != nil
	s.mu.Unlock()
	if !active {
		return ErrNotActive
	}
	return s.process(ctx, gen, ev)
}

func (s *Synchronizer) process(ctx context.Context, gen uint64, ev livechat.InquiryEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.metrics.event(string(ev.Type), "panic")
			err = fmt.Errorf("inquiry event %s panic: %v", ev.ID, p)
		}
	}()
	if ev.Type == "" {
		s.log.Debug("ignore untyped inquiry event", slog.String("inquiry_id", ev.ID))
		return nil
	}

	userID, ring, err := s.apply(gen, ev)
	if err != nil {
		return err
	}
	if ring {
		s.notify(ctx, userID)
	}
	return nil
}

// apply mutates the cache and reports whether the new-inquiry sound should
// be considered.
func (s *Synchronizer) apply(gen uint64, ev livechat.InquiryEvent) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.sub == nil {
		return "", false, ErrNotActive
	}

	var (
		ring    bool
		outcome string
		rec     = ev.InquiryRecord
	)
	switch ev.Type {
	case livechat.EventAdded:
		ring, outcome = s.added(rec)
	case livechat.EventChanged:
		ring, outcome = s.changed(rec)
	case livechat.EventRemoved:
		ring, outcome = s.removed(rec)
	default:
		s.metrics.event(string(ev.Type), "unknown")
		return "", false, fmt.Errorf("unknown inquiry event type %q", ev.Type)
	}
	s.metrics.event(string(ev.Type), outcome)
	s.metrics.setCached(s.store.Len())
	return s.userID, ring, nil
}

// added caches rec when admitted. The pool is counted before the insert: the
// sound plays while the agent's pool is still below the cap.
func (s *Synchronizer) added(rec livechat.InquiryRecord) (bool, string) {
	poolMax := s.settings.PoolMaxIncoming()
	count := 0
	if poolMax > 0 {
		count = s.store.Find(inquirystore.QueuedFor(s.userID), poolMax)
	}

	outcome := "ignored"
	if rec.IsQueued() && s.set.Admits(rec.Department) {
		rec.Alert = true
		err := s.store.Insert(rec)
		if errors.Is(err, inquirystore.ErrDuplicateID) {
			_, err = s.store.Upsert(rec, inquirystore.UpsertOptions{})
		}
		if err != nil {
			return false, "invalid"
		}
		outcome = "inserted"
	}
	return poolMax > 0 && count < poolMax, outcome
}

// changed drops records that left the queue or the subscribed departments and
// upserts the rest. Only a record that was not cached yet rings.
func (s *Synchronizer) changed(rec livechat.InquiryRecord) (bool, string) {
	if !rec.IsQueued() || !s.set.Admits(rec.Department) {
		s.tombstone(rec)
		if s.store.Remove(rec.ID) {
			return false, "removed"
		}
		return false, "ignored"
	}
	rec.Alert = true
	out, err := s.store.Upsert(rec, inquirystore.UpsertOptions{})
	if err != nil {
		return false, "invalid"
	}
	return out == inquirystore.Inserted, out.String()
}

// removed rings only when the pool is still at or above the cap after the
// removal.
func (s *Synchronizer) removed(rec livechat.InquiryRecord) (bool, string) {
	s.tombstone(rec)
	outcome := "ignored"
	if s.store.Remove(rec.ID) {
		outcome = "removed"
	}
	poolMax := s.settings.PoolMaxIncoming()
	if poolMax <= 0 {
		return false, outcome
	}
	return s.store.Find(inquirystore.QueuedFor(s.userID), poolMax) >= poolMax, outcome
}

// tombstone remembers a removal that arrived before the snapshot was merged.
// A removal without a timestamp hides every snapshot copy of the record.
func (s *Synchronizer) tombstone(rec livechat.InquiryRecord) {
	if s.state != Activating || s.tombstones == nil {
		return
	}
	if at, ok := s.tombstones[rec.ID]; ok && (at.IsZero() || at.After(rec.UpdatedAt)) {
		return
	}
	s.tombstones[rec.ID] = rec.UpdatedAt
}

func (s *Synchronizer) notify(ctx context.Context, userID string) {
	if s.sink == nil {
		return
	}
	log := s.log.With("op", "notify", slog.String("user_id", userID))

	if s.presence != nil {
		status, err := s.presence.AgentStatus(ctx, userID)
		if err != nil {
			s.metrics.notification("error")
			log.Warn("agent status", slog.Any("error", err))
			return
		}
		if status != livechat.AgentAvailable {
			s.metrics.notification("unavailable")
			return
		}
	}

	sound, ok, err := preferences.NewRoomNotification(ctx, s.prefs, userID)
	if err != nil {
		s.metrics.notification("error")
		log.Warn("read preference", slog.String("key", preferences.KeyNewRoomNotification), slog.Any("error", err))
		return
	}
	if !ok || sound == preferences.NotificationNone {
		s.metrics.notification("disabled")
		return
	}
	pct, ok, err := preferences.SoundVolume(ctx, s.prefs, userID)
	if err != nil {
		s.metrics.notification("error")
		log.Warn("read preference", slog.String("key", preferences.KeySoundVolume), slog.Any("error", err))
		return
	}
	if !ok {
		s.metrics.notification("disabled")
		return
	}

	if err := s.sink.Play(ctx, sound, notify.PlayOptions{Volume: Volume(pct)}); err != nil {
		s.metrics.notification("error")
		log.Warn("play sound", slog.String("sound", sound), slog.Any("error", err))
		return
	}
	s.metrics.notification("played")
	log.Debug("played new inquiry sound", slog.String("sound", sound))
}

// Volume converts a 0..100 preference to a 0..1 volume with two significant digits.
func Volume(pct int) float64 {
	v, _ := strconv.ParseFloat(strconv.FormatFloat(float64(pct)/100, 'g', 2, 64), 64)
	return v
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Synchronizer) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Departments returns the subscribed departments, sorted.
func (s *Synchronizer) Departments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Slice()
}

// Inquiries returns a snapshot of the cache, oldest first.
func (s *Synchronizer) Inquiries() []livechat.InquiryRecord {
	return s.store.List(inquirystore.Filter{})
}

// PoolStatus returns the pool cap and the saturating count of the current agent.
func (s *Synchronizer) PoolStatus() (int, int) {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	return PoolStatus(s.store, s.settings.PoolMaxIncoming(), userID)
}

// PoolStatus counts the queued inquiries in userID's pool, stopping at poolMax.
// With no cap the count is zero.
func PoolStatus(store *inquirystore.Store, poolMax int, userID string) (int, int) {
	if poolMax <= 0 {
		return poolMax, 0
	}
	return poolMax, store.Find(inquirystore.QueuedFor(userID), poolMax)
}

func fetch[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
