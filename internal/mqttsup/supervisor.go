// Package mqttsup implements the MQTT connection supervisor (spec.md §4.1):
// a single durable session with jittered exponential backoff reconnection,
// subscription replay, and a bounded offline publish queue. It wraps
// eclipse/paho.mqtt.golang with auto-reconnect disabled so this package's
// own loop — not paho's — drives the reconnection algorithm.
package mqttsup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lumirise/lumirise/internal/broadcast"
	"github.com/lumirise/lumirise/internal/lumierr"
)

// Options configures one supervisor instance. Field names mirror spec.md
// §6.4's configuration keys.
type Options struct {
	Server   string
	Port     int
	ClientID string
	Username string
	Password string
	KeepAlive time.Duration

	ReconnectionDelay       time.Duration
	MaxReconnectionDelay    time.Duration
	BackoffMultiplier       float64
	MaxReconnectionAttempts int

	CommandTimeout    time.Duration
	CommandQueueDepth int
}

// Supervisor owns exactly one MQTT client session, per spec.md §4.1.
type Supervisor struct {
	opts   Options
	logger *zap.SugaredLogger

	mu                  sync.Mutex
	client              mqtt.Client
	subscriptions       map[string]byte
	queue               *offlineQueue
	failureCount        int
	disconnectRequested bool
	disposed            bool
	started             bool

	connected atomic.Bool

	connStates *broadcast.Hub[ConnectionState]
	messages   *broadcast.Hub[IncomingMessage]

	drainWake chan struct{}
	stopCh    chan struct{}
	stopOnce  *sync.Once
	loopDone  chan struct{}
	drainDone chan struct{}

	backoffPolicy *backoff.ExponentialBackOff
}

// New constructs a Supervisor. It performs no I/O.
func New(opts Options, logger *zap.SugaredLogger) *Supervisor {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.ReconnectionDelay <= 0 {
		opts.ReconnectionDelay = time.Second
	}
	if opts.MaxReconnectionDelay <= 0 {
		opts.MaxReconnectionDelay = 30 * time.Second
	}
	if opts.BackoffMultiplier <= 0 {
		opts.BackoffMultiplier = 2.0
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Second
	}
	if opts.CommandQueueDepth <= 0 {
		opts.CommandQueueDepth = 20
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.ReconnectionDelay
	bo.MaxInterval = opts.MaxReconnectionDelay
	bo.Multiplier = opts.BackoffMultiplier
	bo.RandomizationFactor = 0.2 // jitter in [0.8, 1.2], per spec.md §4.1 step 4
	bo.MaxElapsedTime = 0        // MaxReconnectionAttempts governs termination, not elapsed time

	return &Supervisor{
		opts:          opts,
		logger:        logger,
		subscriptions: make(map[string]byte),
		queue:         newOfflineQueue(opts.CommandQueueDepth, 5*time.Minute),
		connStates:    broadcast.New[ConnectionState](8),
		messages:      broadcast.New[IncomingMessage](64),
		backoffPolicy: bo,
	}
}

// Connect is idempotent: it builds the client, starts the offline-queue
// drain task, blocks for the first connect attempt to resolve, then starts
// the background convergence loop. A non-I/O error (bad options) is returned
// directly; broker-side failures are absorbed and retried by the loop.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	if s.started {
		s.disconnectRequested = false
		s.mu.Unlock()
		return nil
	}

	client, err := s.buildClient()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("build mqtt client: %w", err)
	}
	s.client = client
	s.disconnectRequested = false
	s.disposed = false
	s.started = true
	s.stopCh = make(chan struct{})
	s.stopOnce = &sync.Once{}
	s.loopDone = make(chan struct{})
	s.drainDone = make(chan struct{})
	s.drainWake = make(chan struct{}, 1)
	s.mu.Unlock()

	go s.drainLoop()

	if connErr := s.attemptConnect(); connErr != nil {
		s.mu.Lock()
		s.failureCount++
		failures := s.failureCount
		s.mu.Unlock()
		s.publishConnState(false, failures, connErr)
		s.logger.Warnw("initial mqtt connect failed, retrying in background", "error", connErr)
	}

	go s.loop()
	return nil
}

// Disconnect is idempotent: it stops the convergence loop, clears the
// offline queue, and issues a graceful disconnect, all bounded by 10s.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	if !s.started || s.disconnectRequested {
		s.mu.Unlock()
		return
	}
	s.disconnectRequested = true
	s.started = false
	s.queue.clear()
	client := s.client
	stopCh := s.stopCh
	once := s.stopOnce
	s.mu.Unlock()

	once.Do(func() { close(stopCh) })
	s.waitStopped(10 * time.Second)

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(250)
	}
	s.connected.Store(false)
	s.publishConnState(false, 0, nil)
}

// Dispose stops all background work (within 10s) and closes the
// connection-state and message streams. Later calls are not rejected with
// ErrDisposed: Publish and Subscribe report ErrNotConnected as they do
// while disconnected, and subscribing to a stream yields a closed channel.
func (s *Supervisor) Dispose() {
	s.Disconnect()
	s.mu.Lock()
	s.disposed = true
	s.started = false
	s.mu.Unlock()
	s.connStates.Dispose()
	s.messages.Dispose()
}

// haltExhausted tears the supervisor down the same way Disconnect does, but
// from inside loop() itself after MaxReconnectionAttempts is exhausted.
// Without this, started stays true forever and a later Connect call sees
// the supervisor as already running and returns without spawning a new
// loop/drainLoop, wedging the supervisor permanently disconnected —
// contradicting the "caller may restart via Connect" contract.
func (s *Supervisor) haltExhausted() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	client := s.client
	stopCh := s.stopCh
	once := s.stopOnce
	s.mu.Unlock()

	once.Do(func() { close(stopCh) })

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(250)
	}
	s.connected.Store(false)
}

func (s *Supervisor) waitStopped(timeout time.Duration) {
	deadline := time.After(timeout)
	for _, done := range []chan struct{}{s.loopDone, s.drainDone} {
		select {
		case <-done:
		case <-deadline:
			return
		}
	}
}

// IsConnected reports the current boolean connection state.
func (s *Supervisor) IsConnected() bool {
	return s.connected.Load()
}

// ConnectionStateChanges returns a lazy stream of connection transitions.
func (s *Supervisor) ConnectionStateChanges() (<-chan ConnectionState, func()) {
	return s.connStates.Subscribe()
}

// MessageReceived returns a lazy stream of messages on any subscribed topic.
func (s *Supervisor) MessageReceived() (<-chan IncomingMessage, func()) {
	return s.messages.Subscribe()
}

// Publish publishes to topic, enqueueing into the bounded offline queue on
// ErrNotConnected (dropping the publish and logging a warning if the queue
// is full).
func (s *Supervisor) Publish(ctx context.Context, topic string, payload []byte) error {
	return s.publish(ctx, topic, payload, true)
}

// Subscribe records topic so it is replayed on every successful (re)connect,
// and subscribes immediately if already connected.
func (s *Supervisor) Subscribe(ctx context.Context, topic string) error {
	s.mu.Lock()
	s.subscriptions[topic] = 0
	connected := s.connected.Load()
	client := s.client
	s.mu.Unlock()

	if !connected {
		return lumierr.ErrNotConnected
	}
	return s.subscribeNow(ctx, client, topic, 0)
}

func (s *Supervisor) publish(ctx context.Context, topic string, payload []byte, enqueueOnDisconnect bool) error {
	s.mu.Lock()
	client := s.client
	connected := s.connected.Load()
	s.mu.Unlock()

	if !connected || client == nil {
		if enqueueOnDisconnect {
			s.mu.Lock()
			ok := s.queue.push(topic, payload, time.Now())
			s.mu.Unlock()
			if !ok {
				s.logger.Warnw("offline queue full, dropping publish", "topic", topic)
			}
		}
		return lumierr.ErrNotConnected
	}

	token := client.Publish(topic, 0, false, payload)
	err := waitToken(ctx, token, s.opts.CommandTimeout)
	if err != nil {
		s.markDisconnected(err)
		if enqueueOnDisconnect {
			s.mu.Lock()
			s.queue.push(topic, payload, time.Now())
			s.mu.Unlock()
		}
		return err
	}
	return nil
}

func (s *Supervisor) subscribeNow(ctx context.Context, client mqtt.Client, topic string, qos byte) error {
	token := client.Subscribe(topic, qos, nil)
	if err := waitToken(ctx, token, s.opts.CommandTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return lumierr.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) markDisconnected(err error) {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	s.failureCount++
	failures := s.failureCount
	s.mu.Unlock()
	s.publishConnState(false, failures, err)
}

func (s *Supervisor) publishConnState(connected bool, attempt int, err error) {
	s.connStates.Publish(ConnectionState{
		IsConnected:   connected,
		AttemptNumber: attempt,
		LastError:     err,
		UpdatedAt:     time.Now(),
	})
}

// buildClient constructs a fresh paho client with auto-reconnect disabled so
// this package's loop is the sole driver of reconnection.
func (s *Supervisor) buildClient() (mqtt.Client, error) {
	broker := fmt.Sprintf("tcp://%s:%d", s.opts.Server, s.opts.Port)
	copts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(s.opts.ClientID).
		SetKeepAlive(s.opts.KeepAlive).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOrderMatters(false)
	if s.opts.Username != "" {
		copts.SetUsername(s.opts.Username)
	}
	if s.opts.Password != "" {
		copts.SetPassword(s.opts.Password)
	}
	copts.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		s.messages.Publish(IncomingMessage{Topic: m.Topic(), Payload: m.Payload()})
	})
	copts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warnw("mqtt connection lost", "error", err)
		s.markDisconnected(err)
	})
	return mqtt.NewClient(copts), nil
}

// attemptConnect performs a single connect attempt. On success it resets
// the failure counter, resubscribes the recorded topic set, and wakes the
// queue-drain task — all before returning, so the ordering in spec.md §5
// ("Ordering guarantees") holds even though this package does not use
// paho's async handlers for the happy path.
func (s *Supervisor) attemptConnect() error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
	defer cancel()

	token := client.Connect()
	if err := waitToken(ctx, token, s.opts.CommandTimeout); err != nil {
		return err
	}

	s.mu.Lock()
	s.failureCount = 0
	subs := make(map[string]byte, len(s.subscriptions))
	for topic, qos := range s.subscriptions {
		subs[topic] = qos
	}
	s.mu.Unlock()

	s.backoffPolicy.Reset()
	s.connected.Store(true)
	s.publishConnState(true, 0, nil)

	for topic, qos := range subs {
		subCtx, subCancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		if err := s.subscribeNow(subCtx, client, topic, qos); err != nil {
			s.logger.Warnw("resubscribe failed", "topic", topic, "error", err)
		}
		subCancel()
	}

	s.wakeDrain()
	return nil
}

func (s *Supervisor) wakeDrain() {
	select {
	case s.drainWake <- struct{}{}:
	default:
	}
}

// loop is the single background task ticking on a period of
// max(500ms, ReconnectionDelay), per spec.md §4.1.
func (s *Supervisor) loop() {
	defer close(s.loopDone)

	tickInterval := s.opts.ReconnectionDelay
	if tickInterval < 500*time.Millisecond {
		tickInterval = 500 * time.Millisecond
	}

	timer := time.NewTimer(tickInterval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}

		s.mu.Lock()
		disconnectRequested := s.disconnectRequested
		disposed := s.disposed
		client := s.client
		s.mu.Unlock()

		if disconnectRequested || disposed {
			timer.Reset(tickInterval)
			continue
		}

		if client != nil && client.IsConnectionOpen() {
			timer.Reset(tickInterval)
			continue
		}

		if err := s.attemptConnect(); err == nil {
			timer.Reset(tickInterval)
			continue
		} else {
			s.mu.Lock()
			s.failureCount++
			failures := s.failureCount
			maxAttempts := s.opts.MaxReconnectionAttempts
			s.mu.Unlock()
			s.publishConnState(false, failures, err)

			if maxAttempts > 0 && failures >= maxAttempts {
				s.logger.Warnw("max reconnection attempts reached, stopping supervisor loop", "attempts", failures)
				s.haltExhausted()
				return
			}

			delay := s.backoffPolicy.NextBackOff()
			if delay == backoff.Stop {
				delay = s.opts.MaxReconnectionDelay
			}
			timer.Reset(delay)
		}
	}
}

// drainLoop runs the queue-drain task: it wakes whenever the supervisor
// reconnects and empties the offline queue, re-enqueuing and stopping after
// a single failed retry per spec.md §4.1.
func (s *Supervisor) drainLoop() {
	defer close(s.drainDone)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.drainWake:
			s.drainOnce()
		}
	}
}

func (s *Supervisor) drainOnce() {
	for {
		if !s.connected.Load() {
			return
		}
		s.mu.Lock()
		entry, ok := s.queue.pop(time.Now())
		s.mu.Unlock()
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		err := s.publish(ctx, entry.topic, entry.payload, false)
		cancel()
		if err != nil {
			s.mu.Lock()
			s.queue.pushFront(entry)
			s.mu.Unlock()
			s.logger.Warnw("drain publish failed, requeued and stopping until next reconnect", "topic", entry.topic, "error", err)
			return
		}
	}
}
