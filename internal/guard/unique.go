// Package guard issues auth codes with the guarantee that two sequential calls
// on the same guard never return the same code.
package guard

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrylevesque/steamguard/internal/crypto"
	"github.com/harrylevesque/steamguard/internal/utils"
)

// Clock is the time source a guard waits on. Code generation must follow a
// real, advancing clock: with a frozen clock Next never returns.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Generator produces the auth code for a point in time.
type Generator func(at time.Time) (string, error)

// UniqueCodeGuard wraps a Generator and remembers the last code it handed out.
type UniqueCodeGuard struct {
	generate Generator
	clock    Clock
	logger   logrus.FieldLogger

	// turn serializes Next callers. mu guards last only and is never held
	// across a wait.
	turn chan struct{}
	mu   sync.Mutex
	last string
}

type Option func(*UniqueCodeGuard)

func WithClock(c Clock) Option {
	return func(g *UniqueCodeGuard) { g.clock = c }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *UniqueCodeGuard) { g.logger = l }
}

// New wraps an arbitrary generator.
func New(generate Generator, opts ...Option) *UniqueCodeGuard {
	g := &UniqueCodeGuard{
		generate: generate,
		clock:    SystemClock,
		logger:   utils.DiscardLogger(),
		turn:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ForSecret builds a guard over crypto.GenerateAuthCode with the given shared secret.
// The secret is validated up front.
func ForSecret(sharedSecret string, opts ...Option) (*UniqueCodeGuard, error) {
	if _, err := crypto.DecodeSecret(sharedSecret); err != nil {
		return nil, err
	}
	return New(func(at time.Time) (string, error) {
		return crypto.GenerateAuthCode(sharedSecret, at)
	}, opts...), nil
}

// Code returns the current code without the uniqueness wait, recording it as last issued.
func (g *UniqueCodeGuard) Code() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code, err := g.generate(g.clock.Now())
	if err != nil {
		return "", err
	}
	g.last = code
	return code, nil
}

// Next returns a code different from the previously issued one. When the current
// window would repeat the last code it waits for the next time-step boundary and retries.
// Calls on one guard are serialized, so concurrent callers also get distinct codes.
func (g *UniqueCodeGuard) Next(ctx context.Context) (string, error) {
	select {
	case g.turn <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-g.turn }()

	for {
		now := g.clock.Now()
		code, fresh, err := g.issue(now)
		if err != nil {
			return "", err
		}
		if fresh {
			return code, nil
		}

		wait := untilNextStep(now)
		g.logger.WithField("wait", wait.String()).Debug("auth code already issued, waiting for next window")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-g.clock.After(wait):
		}
	}
}

// issue records the code for now as last issued unless it repeats the last one.
func (g *UniqueCodeGuard) issue(now time.Time) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code, err := g.generate(now)
	if err != nil {
		return "", false, err
	}
	if code == g.last {
		return code, false, nil
	}
	g.last = code
	return code, true, nil
}

// Last returns the most recently issued code, or "" if none.
func (g *UniqueCodeGuard) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func untilNextStep(now time.Time) time.Duration {
	step := crypto.TimeStep
	elapsed := time.Duration(now.UnixNano()) % step
	return step - elapsed
}
