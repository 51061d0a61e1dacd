package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a submission floor and escalates delays while the
// server is throttling. One Limiter serves one run; it is safe for
// concurrent use.
type Limiter struct {
	profile Profile
	pacer   *rate.Limiter

	mu          sync.Mutex
	penalty     time.Duration
	cooldown    time.Duration // pending one-off pause
	consLimited int
	consOK      int
}

// New builds a Limiter for the given profile.
func New(p Profile) *Limiter {
	return &Limiter{
		profile: p,
		pacer:   rate.NewLimiter(rate.Every(p.MinInterval), 1),
	}
}

// Profile returns the active profile.
func (l *Limiter) Profile() Profile { return l.profile }

// Wait blocks until the next submit attempt is allowed: the minimum
// interval, plus any accumulated penalty, plus a pending cooldown,
// plus jitter. Returns early with ctx's error on cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	extra := l.penalty + l.cooldown + l.jitterLocked()
	l.cooldown = 0
	l.mu.Unlock()

	if err := l.pacer.Wait(ctx); err != nil {
		return err
	}
	return sleep(ctx, extra)
}

// RecordRateLimited notes a throttled submit. The penalty starts at the
// profile's initial value and doubles on each consecutive event up to
// the cap. After CooldownAfter consecutive events a one-off cooldown is
// queued for the next Wait.
func (l *Limiter) RecordRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.consOK = 0
	l.consLimited++

	if l.penalty == 0 {
		l.penalty = l.profile.PenaltyInitial
	} else {
		l.penalty *= 2
		if l.penalty > l.profile.PenaltyMax {
			l.penalty = l.profile.PenaltyMax
		}
	}

	if l.profile.CooldownAfter > 0 && l.consLimited >= l.profile.CooldownAfter {
		l.cooldown = l.profile.Cooldown
		l.consLimited = 0
	}
}

// RecordSuccess notes an accepted submit and pauses for the profile's
// success delay. Three consecutive successes halve the penalty; once it
// falls below the initial value it clears entirely.
func (l *Limiter) RecordSuccess(ctx context.Context) error {
	l.mu.Lock()
	l.consLimited = 0
	l.consOK++
	if l.consOK >= 3 && l.penalty > 0 {
		l.penalty /= 2
		if l.penalty < l.profile.PenaltyInitial {
			l.penalty = 0
		}
		l.consOK = 0
	}
	delay := l.profile.SuccessDelay + l.jitterLocked()
	l.mu.Unlock()

	return sleep(ctx, delay)
}

// Penalty returns the current accumulated penalty.
func (l *Limiter) Penalty() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.penalty
}

// PendingCooldown returns the queued cooldown, if any.
func (l *Limiter) PendingCooldown() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cooldown
}

func (l *Limiter) jitterLocked() time.Duration {
	if l.profile.JitterMax <= 0 {
		return 0
	}
	return rand.N(l.profile.JitterMax)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
