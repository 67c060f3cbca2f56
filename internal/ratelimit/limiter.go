// Package ratelimit bounds concurrent remote operations and spaces them out
// with jittered delays. Throttling signals escalate the delay for the noisy
// domain only; unrelated domains keep the base pacing.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Config tunes the limiter. Zero values fall back to the defaults below.
type Config struct {
	MaxConcurrent int           // permit count
	DelayMin      time.Duration // jitter window lower bound
	DelayMax      time.Duration // jitter window upper bound
	Ceiling       time.Duration // cap for escalated per-domain delay
	Cooldown      time.Duration // quiet window after which escalation resets
}

const (
	defaultMaxConcurrent = 3
	defaultDelayMin      = 2 * time.Second
	defaultDelayMax      = 5 * time.Second
	defaultCeiling       = 60 * time.Second
	defaultCooldown      = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.DelayMin <= 0 {
		c.DelayMin = defaultDelayMin
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = defaultDelayMax
		if c.DelayMax < c.DelayMin {
			c.DelayMax = c.DelayMin
		}
	}
	if c.Ceiling <= 0 {
		c.Ceiling = defaultCeiling
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultCooldown
	}
	return c
}

type domainState struct {
	delay      time.Duration
	lastSignal time.Time
}

// Limiter hands out permits for remote operations and tracks per-domain
// backoff state.
type Limiter struct {
	cfg     Config
	permits chan struct{}

	mu      sync.Mutex
	domains map[string]*domainState
	rnd     *rand.Rand
	now     func() time.Time // test hook
}

func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	return &Limiter{
		cfg:     cfg,
		permits: make(chan struct{}, cfg.MaxConcurrent),
		domains: make(map[string]*domainState),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Acquire blocks until a permit is free or ctx is done. The returned release
// func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	select {
	case l.permits <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l.permits }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait sleeps the current delay for the domain: the jittered base window, or
// the escalated per-domain delay while its cooldown is still running.
func (l *Limiter) Wait(ctx context.Context, domain string) error {
	d := l.Delay(domain)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns what Wait would sleep for the domain right now.
func (l *Limiter) Delay(domain string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	base := l.cfg.DelayMin
	if span := l.cfg.DelayMax - l.cfg.DelayMin; span > 0 {
		base += time.Duration(l.rnd.Int63n(int64(span) + 1))
	}

	st, ok := l.domains[domain]
	if !ok {
		return base
	}
	if l.now().Sub(st.lastSignal) >= l.cfg.Cooldown {
		// Quiet long enough; forget the escalation.
		delete(l.domains, domain)
		return base
	}
	if st.delay > base {
		return st.delay
	}
	return base
}

// Throttled records a throttling signal (429-equivalent or repeated 5xx) for
// the domain, doubling its delay up to the ceiling.
func (l *Limiter) Throttled(domain string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.domains[domain]
	if !ok {
		st = &domainState{delay: l.cfg.DelayMax}
		l.domains[domain] = st
	}
	st.delay *= 2
	if st.delay > l.cfg.Ceiling {
		st.delay = l.cfg.Ceiling
	}
	st.lastSignal = l.now()
}
