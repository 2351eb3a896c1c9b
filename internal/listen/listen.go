// Package listen implements the poll state machine: a long-lived client
// that maintains a session with a scanner through an init/poll/backoff
// lifecycle, launching an external command whenever the scanner reports a
// scan-button interrupt.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/johnmave126/scanner-button/bjnp"
	"github.com/johnmave126/scanner-button/bjnp/poll"
	"github.com/johnmave126/scanner-button/internal/channel"
	"github.com/johnmave126/scanner-button/internal/launch"
)

// pollInterval is the fixed cadence between successive poll rounds.
const pollInterval = time.Second

// Config carries everything a Listener needs: the scanner to talk to, the
// hostname to announce, timeout/backoff tuning, and the command to run on
// each scan-button interrupt.
type Config struct {
	ScannerAddr       *net.UDPAddr
	Hostname          bjnp.Host
	InitialMaxWaiting time.Duration
	BackoffFactor     float64
	BackoffMaximum    time.Duration
	Command           string
	Args              []string
}

// state is the poll state machine's current phase.
type state int

const (
	stateInit state = iota
	statePoll
	stateBackoff
)

// Listener drives the init/poll/backoff lifecycle against one scanner over
// one Channel. Not safe for concurrent use — a channel is owned by exactly
// one Listener.
type Listener struct {
	cfg        Config
	channel    *channel.Channel
	state      state
	sessionID  uint32
	backoff    *backoff.ExponentialBackOff
	backoffDur time.Duration
}

// New opens a channel to cfg.ScannerAddr and returns a Listener in the
// Init state.
func New(cfg Config) (*Listener, error) {
	ch, err := channel.New(cfg.ScannerAddr)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialMaxWaiting
	b.Multiplier = cfg.BackoffFactor
	b.MaxInterval = cfg.BackoffMaximum
	b.MaxElapsedTime = 0 // no terminal state: never give up
	b.RandomizationFactor = 0
	b.Reset()

	return &Listener{cfg: cfg, channel: ch, state: stateInit, backoff: b}, nil
}

// Close releases the underlying channel.
func (l *Listener) Close() error {
	return l.channel.Close()
}

// Run drives the state machine until ctx is cancelled or a step returns an
// error that isn't recoverable by the transition table (there is none —
// every step error is caught and converted into a state transition).
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := l.next(ctx); err != nil {
			slog.Warn("listen: step failed", "state", l.state, "err", err)
			l.transitionErr()
			continue
		}
	}
}

func (l *Listener) next(ctx context.Context) error {
	switch l.state {
	case stateInit:
		slog.Debug("listen: initializing")
		if err := l.tryInit(ctx, l.cfg.InitialMaxWaiting); err != nil {
			return err
		}
		l.backoff.Reset()
		l.state = statePoll
		return nil

	case stateBackoff:
		slog.Debug("listen: retrying from backoff", "wait", l.backoffDur)
		if err := l.tryInit(ctx, l.backoffDur); err != nil {
			return err
		}
		l.backoff.Reset()
		l.state = statePoll
		return nil

	case statePoll:
		return l.pollRound(ctx, l.cfg.InitialMaxWaiting)

	default:
		return fmt.Errorf("listen: unknown state %d", l.state)
	}
}

// transitionErr applies the error-transition half of the state table: Init
// backs off, Poll reinitializes, and Backoff grows.
func (l *Listener) transitionErr() {
	switch l.state {
	case stateInit:
		l.backoffDur = l.backoff.NextBackOff()
		l.state = stateBackoff
	case statePoll:
		l.state = stateInit
	case stateBackoff:
		l.backoffDur = l.backoff.NextBackOff()
	}
}

// tryInit performs the discover+HostOnly-poll handshake that establishes
// (or re-establishes) a session, bounding every send/recv by maxWaiting.
func (l *Listener) tryInit(ctx context.Context, maxWaiting time.Duration) error {
	l.channel.ResetSequence()

	if err := l.send(ctx, maxWaiting, bjnp.Discover, bjnp.Empty{}); err != nil {
		return fmt.Errorf("tryInit: send discover: %w", err)
	}
	if _, err := recvWithDeadline(ctx, l.channel, maxWaiting, bjnp.ParseDiscoverResponse); err != nil {
		return fmt.Errorf("tryInit: recv discover response: %w", err)
	}

	cmd, err := poll.NewCommandBuilder(poll.HostOnly).Host(l.cfg.Hostname).Build()
	if err != nil {
		return fmt.Errorf("tryInit: build host-only command: %w", err)
	}
	if err := l.send(ctx, maxWaiting, bjnp.Poll, cmd); err != nil {
		return fmt.Errorf("tryInit: send host-only command: %w", err)
	}
	resp, err := recvWithDeadline(ctx, l.channel, maxWaiting, poll.ParseResponse)
	if err != nil {
		return fmt.Errorf("tryInit: recv poll response: %w", err)
	}

	if resp.SessionID == nil {
		return errors.New("tryInit: unexpected interrupt during first poll")
	}
	l.sessionID = *resp.SessionID
	slog.Info("listen: session established", "session_id", l.sessionID)
	return nil
}

// pollRound sends one Full poll command, handles an interrupt if the
// scanner reports one, and sleeps pollInterval before returning.
func (l *Listener) pollRound(ctx context.Context, maxWaiting time.Duration) error {
	now := localNow()

	cmd, err := poll.NewCommandBuilder(poll.Full).
		Host(l.cfg.Hostname).
		SessionID(l.sessionID).
		DateTime(now).
		Build()
	if err != nil {
		return fmt.Errorf("pollRound: build full command: %w", err)
	}
	if err := l.send(ctx, maxWaiting, bjnp.Poll, cmd); err != nil {
		return fmt.Errorf("pollRound: send full command: %w", err)
	}
	resp, err := recvWithDeadline(ctx, l.channel, maxWaiting, poll.ParseResponse)
	if err != nil {
		return fmt.Errorf("pollRound: recv poll response: %w", err)
	}

	if resp.SessionID != nil {
		l.sessionID = *resp.SessionID
	}

	if resp.Status == poll.InterruptBit {
		if resp.Interrupt != nil {
			slog.Info("listen: scan button pressed", "interrupt", *resp.Interrupt)
			if err := launch.Run(l.cfg.Command, l.cfg.Args, *resp.Interrupt); err != nil {
				slog.Error("listen: failed to launch external command", "err", err)
			}
		}

		var actionID uint32
		if resp.ActionID != nil {
			actionID = *resp.ActionID
		}
		reset, err := poll.NewCommandBuilder(poll.Reset).
			Host(l.cfg.Hostname).
			SessionID(l.sessionID).
			ActionID(actionID).
			Build()
		if err != nil {
			return fmt.Errorf("pollRound: build reset command: %w", err)
		}
		if err := l.send(ctx, maxWaiting, bjnp.Poll, reset); err != nil {
			return fmt.Errorf("pollRound: send reset command: %w", err)
		}
		if _, err := recvWithDeadline(ctx, l.channel, maxWaiting, poll.ParseResponse); err != nil {
			return fmt.Errorf("pollRound: recv reset response: %w", err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pollInterval):
		return nil
	}
}

func (l *Listener) send(ctx context.Context, maxWaiting time.Duration, payloadType bjnp.PayloadType, payload bjnp.Serializer) error {
	opCtx, cancel := context.WithTimeout(ctx, maxWaiting)
	defer cancel()
	return l.channel.Send(opCtx, payloadType, payload)
}

// recvWithDeadline is a free function (not a Listener method) because Go
// methods cannot introduce their own type parameters — it mirrors
// channel.Recv but derives a fresh per-operation deadline the way every
// other send/recv in the state machine does.
func recvWithDeadline[T bjnp.Serializer](ctx context.Context, ch *channel.Channel, maxWaiting time.Duration, parse func(buf []byte) (T, int, error)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, maxWaiting)
	defer cancel()
	return channel.Recv(opCtx, ch, parse)
}

// localNow returns the current local time, falling back to UTC if the
// local offset can't be determined.
func localNow() time.Time {
	return time.Now()
}
