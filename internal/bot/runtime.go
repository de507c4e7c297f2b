// Package bot runs one gateway session per configured identity.
//
// A Runtime owns nothing shared: the store, persona manager, outbound
// client, and limiter all come from the registry. Everything the runtime
// mutates is its own, so running many runtimes concurrently needs no
// coordination beyond the registry's own locking.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/persona-hq/persona/internal/command"
	"github.com/persona-hq/persona/internal/config"
	"github.com/persona-hq/persona/internal/gateway"
	"github.com/persona-hq/persona/internal/openai"
	"github.com/persona-hq/persona/internal/ratelimit"
	"github.com/persona-hq/persona/internal/registry"
	"github.com/persona-hq/persona/internal/store"
	"github.com/persona-hq/persona/internal/telemetry"
)

// ErrAttemptsExhausted means the runtime used its whole reconnect budget
// without establishing a connection.
var ErrAttemptsExhausted = errors.New("bot: connect attempts exhausted")

// Options is supervisor-level policy applied to one runtime.
type Options struct {
	// MaxConnectAttempts bounds consecutive failed connection cycles. A
	// failed dial and a connection lost shortly after connecting both
	// consume one attempt; only a stable connection (see StableAfter)
	// restores the budget.
	MaxConnectAttempts int

	// InitialBackoff and MaxBackoff shape the retry schedule. Zero values
	// pick 1s and 30s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// StableAfter is how long a connection must live before the retry
	// budget and backoff schedule reset. Guards against a flapping gateway
	// that accepts every handshake and then drops it. Zero picks 1m.
	StableAfter time.Duration

	// GlobalModel is the process-wide completion model; the identity's
	// Model field overrides it.
	GlobalModel string

	// NotifyChannel receives the first-ready announcement. Empty disables.
	NotifyChannel string

	// ReminderInterval is the reminder poller cadence. Zero disables the
	// poller.
	ReminderInterval time.Duration

	// Version is reported by the version command.
	Version string

	Logger *slog.Logger
}

// Runtime is one bot's connection lifecycle and event loop.
type Runtime struct {
	identity config.Bot
	shared   *registry.Registry
	dialer   gateway.Dialer
	opts     Options
	key      store.BotKey
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	connectedAt time.Time

	handled    metric.Int64Counter
	throttled  metric.Int64Counter
	reconnects metric.Int64Counter
	reminders  metric.Int64Counter
	botAttr    attribute.KeyValue
}

// New builds a runtime for one identity. Nothing connects until Run.
func New(identity config.Bot, shared *registry.Registry, dialer gateway.Dialer, opts Options) *Runtime {
	if opts.MaxConnectAttempts < 1 {
		opts.MaxConnectAttempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = time.Minute
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	key := store.KeyFor(identity.Name)
	if identity.Legacy {
		key = store.LegacyKey()
	}

	meter := telemetry.Meter("persona/bot")
	handled, _ := meter.Int64Counter("bot.events.handled")
	throttled, _ := meter.Int64Counter("bot.events.throttled")
	reconnects, _ := meter.Int64Counter("bot.reconnects")
	reminders, _ := meter.Int64Counter("bot.reminders.delivered")

	return &Runtime{
		identity:   identity,
		shared:     shared,
		dialer:     dialer,
		opts:       opts,
		key:        key,
		logger:     logger.With("bot", identity.Name),
		state:      State{Phase: PhaseStarting},
		handled:    handled,
		throttled:  throttled,
		reconnects: reconnects,
		reminders:  reminders,
		botAttr:    attribute.String("bot", identity.Name),
	}
}

// Name returns the identity this runtime serves.
func (r *Runtime) Name() string { return r.identity.Name }

// State returns the runtime's current lifecycle snapshot.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// newBackOff builds the retry schedule: exponential, capped, and with
// jitter disabled so consecutive delays never shrink.
func (r *Runtime) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.opts.InitialBackoff
	bo.MaxInterval = r.opts.MaxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// Run drives the runtime to a terminal state. It returns Stopped when ctx
// is cancelled, and Failed when the connect budget is exhausted or the
// credential is rejected. Run never panics its caller's goroutine on event
// handler bugs; handler errors are logged and the loop continues.
func (r *Runtime) Run(ctx context.Context) Outcome {
	bo := r.newBackOff()
	failures := 0

	for {
		if ctx.Err() != nil {
			return r.stopped()
		}

		conn, err := r.dialer.Dial(ctx, r.identity.Token)
		if err != nil {
			if ctx.Err() != nil {
				return r.stopped()
			}
			if !gateway.IsRetryable(err) {
				r.logger.Error("credential rejected, not retrying", "error", err)
				return r.failed(err)
			}
			r.logger.Warn("connect failed", "error", err)
		} else {
			started := time.Now()
			err = r.serve(ctx, conn)
			_ = conn.Close()

			if ctx.Err() != nil {
				return r.stopped()
			}
			if err != nil && !gateway.IsRetryable(err) {
				r.logger.Error("session revoked, not retrying", "error", err)
				return r.failed(err)
			}
			// A connection that held for a while earned back its budget. One
			// that died under the threshold counts against it like a failed
			// dial, so a flapping gateway cannot keep the runtime in a tight
			// dial loop forever.
			if time.Since(started) >= r.opts.StableAfter {
				failures = 0
				bo = r.newBackOff()
			}
			r.logger.Warn("connection lost", "error", err)
		}

		failures++
		if failures >= r.opts.MaxConnectAttempts {
			r.logger.Error("connect attempts exhausted",
				"attempts", failures, "error", err)
			return r.failed(fmt.Errorf("%w after %d attempts: %v",
				ErrAttemptsExhausted, failures, err))
		}

		delay := bo.NextBackOff()
		r.setState(State{Phase: PhaseRetrying, Attempt: failures, Backoff: delay, Err: err})
		r.logger.Warn("backing off before reconnect", "attempt", failures, "backoff", delay)
		r.reconnects.Add(ctx, 1, metric.WithAttributes(r.botAttr))

		select {
		case <-ctx.Done():
			return r.stopped()
		case <-time.After(delay):
		}
	}
}

func (r *Runtime) stopped() Outcome {
	r.setState(State{Phase: PhaseStopped})
	r.logger.Info("stopped")
	return Outcome{Bot: r.identity.Name, Phase: PhaseStopped}
}

func (r *Runtime) failed(err error) Outcome {
	r.setState(State{Phase: PhaseFailed, Err: err})
	return Outcome{Bot: r.identity.Name, Phase: PhaseFailed, Err: err}
}

// serve owns one live connection: registration, the first-ready
// announcement, the reminder poller, and the event loop. It returns nil
// only when ctx is cancelled; otherwise it returns the reason the
// connection died.
func (r *Runtime) serve(ctx context.Context, conn gateway.Connection) error {
	cmds, err := r.resolveCommands(ctx)
	if err != nil {
		return err
	}
	specs := make([]gateway.CommandSpec, len(cmds))
	for i, c := range cmds {
		specs[i] = gateway.CommandSpec{Name: c.Name, Description: c.Description, AdminOnly: c.AdminOnly}
	}
	if err := conn.RegisterCommands(ctx, specs); err != nil {
		return fmt.Errorf("bot: register commands: %w", err)
	}

	r.setState(State{Phase: PhaseConnected})
	r.mu.Lock()
	r.connectedAt = time.Now()
	r.mu.Unlock()
	r.logger.Info("connected", "commands", command.Names(cmds))

	r.announceFirstReady(ctx, conn)

	serveCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	// Stop the poller before returning, whatever killed the connection.
	defer func() {
		cancel()
		wg.Wait()
	}()
	if r.opts.ReminderInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.pollReminders(serveCtx, conn)
		}()
	}

	dispatch := command.ByName(cmds)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-conn.Events():
			if !ok {
				if err := conn.Err(); err != nil {
					return err
				}
				return errors.New("bot: connection closed")
			}
			r.handleEvent(ctx, conn, dispatch, ev)
		}
	}
}

// resolveCommands intersects the catalog with the identity's allowlist,
// then drops commands whose feature flag is disabled for this bot. Feature
// flags are resolved once per connection, not per invocation.
func (r *Runtime) resolveCommands(ctx context.Context) ([]command.Command, error) {
	cmds := command.Filter(command.Catalog(), r.identity.Commands)
	out := make([]command.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Feature != "" {
			on, err := r.shared.Store.FeatureEnabled(ctx, r.key, c.Feature)
			if err != nil {
				return nil, fmt.Errorf("bot: resolve feature %q: %w", c.Feature, err)
			}
			if !on {
				continue
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// announceFirstReady posts the startup notification at most once per bot
// per process, never on reconnects, and honors the per-bot toggle. A failed
// send gives the mark back so the next connection retries the announcement.
func (r *Runtime) announceFirstReady(ctx context.Context, conn gateway.Connection) {
	if r.opts.NotifyChannel == "" || !r.identity.StartupNotificationEnabled() {
		return
	}
	if v, err := r.shared.Store.BotSetting(ctx, r.key, "startup_notification"); err == nil && v == "disabled" {
		return
	}
	if !r.shared.FirstReady(r.identity.Name) {
		return
	}
	msg := fmt.Sprintf("%s is online", r.identity.Name)
	if err := conn.Send(ctx, r.opts.NotifyChannel, msg); err != nil {
		r.logger.Warn("startup notification failed", "error", err)
		r.shared.ClearReady(r.identity.Name)
	}
}

// handleEvent processes one inbound event. Handler errors are logged, never
// fatal: a bad interaction must not tear down the connection.
func (r *Runtime) handleEvent(ctx context.Context, conn gateway.Connection, dispatch map[string]command.Command, ev gateway.Event) {
	if ev.FromBot {
		return
	}

	allowed, err := r.shared.Limiter.Allow(ctx, ratelimit.KeyFor(r.identity.Name, ev.UserID))
	if err != nil {
		// Fail open: a broken limiter should degrade to no throttling.
		r.logger.Warn("rate limiter error, allowing", "error", err)
		allowed = true
	}
	if !allowed {
		r.throttled.Add(ctx, 1, metric.WithAttributes(r.botAttr))
		return
	}

	r.handled.Add(ctx, 1, metric.WithAttributes(r.botAttr))

	switch ev.Type {
	case gateway.EventCommand:
		cmd, ok := dispatch[ev.Command]
		if !ok {
			// Not ours: another bot in the guild serves it.
			return
		}
		if cmd.AdminOnly && !ev.Admin {
			r.reply(ctx, conn, ev, "That command requires guild admin permissions.")
			return
		}
		if err := r.runCommand(ctx, conn, ev); err != nil {
			r.logger.Error("command failed", "command", ev.Command, "error", err)
			r.reply(ctx, conn, ev, "Something went wrong handling that command.")
		}
	case gateway.EventMessage:
		if err := r.converse(ctx, conn, ev); err != nil {
			r.logger.Error("conversation failed", "error", err)
		}
	}
}

// converse answers free-form chat through the resolved persona.
func (r *Runtime) converse(ctx context.Context, conn gateway.Connection, ev gateway.Event) error {
	p, err := r.shared.Personas.Resolve(ctx, r.key, ev.UserID, r.identity.DefaultPersona)
	if err != nil {
		return err
	}

	model := r.identity.EffectiveModel(r.opts.GlobalModel)
	reply, err := r.shared.OpenAI.Complete(ctx, openai.Request{
		Model:  model,
		System: p.System,
		Prompt: ev.Content,
	})
	if err != nil {
		return err
	}

	if err := conn.Send(ctx, ev.ChannelID, reply); err != nil {
		return err
	}
	if err := r.shared.Store.LogUsage(ctx, r.key, ev.UserID, model, len(ev.Content), len(reply)); err != nil {
		r.logger.Warn("usage log failed", "error", err)
	}
	return nil
}

func (r *Runtime) reply(ctx context.Context, conn gateway.Connection, ev gateway.Event, msg string) {
	if err := conn.Send(ctx, ev.ChannelID, msg); err != nil {
		r.logger.Warn("reply failed", "error", err)
	}
}
