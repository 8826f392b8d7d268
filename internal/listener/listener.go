// Package listener follows Postgres status-change notifications and keeps
// the summary cache current.
package listener

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const debounce = 200 * time.Millisecond

// Refresher is the summary cache as seen by the listener.
type Refresher interface {
	Refresh(ctx context.Context, adGroupID string) error
	Invalidate(adGroupID string)
}

// Source hands out the pool and the channel status writes notify.
type Source interface {
	PgxPool() *pgxpool.Pool
	ListenChannel() string
}

// ListenAndRefresh blocks until ctx is done. Every notification carries an ad
// group id. A burst for the same ad group refreshes once and invalidates for
// the rest, so the next read sees the final state.
func ListenAndRefresh(ctx context.Context, src Source, ref Refresher, channel string, baseBackoff time.Duration) {
	if channel == "" {
		channel = src.ListenChannel()
	}
	d := newDebouncer(debounce)
	for {
		err := listen(ctx, src.PgxPool(), channel, func(adGroupID string) {
			if !d.allow(adGroupID) {
				ref.Invalidate(adGroupID)
				return
			}
			log.Debug().Str("ad_group_id", adGroupID).Msg("status change; refreshing summaries")
			if err := ref.Refresh(ctx, adGroupID); err != nil {
				log.Error().Err(err).Str("ad_group_id", adGroupID).Msg("refresh summaries")
			}
		})
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("notify wait error")
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		case <-time.After(backoff):
		}
	}
}

// listen holds one connection until it fails or ctx ends.
func listen(ctx context.Context, pool *pgxpool.Pool, channel string, handle func(string)) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for status changes")

	for {
		ntf, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if ntf.Payload == "" {
			continue
		}
		handle(ntf.Payload)
	}
}

type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, last: map[string]time.Time{}, now: time.Now}
}

func (d *debouncer) allow(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if t, ok := d.last[key]; ok && now.Sub(t) < d.window {
		return false
	}
	d.last[key] = now
	return true
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x–1.5x
	return time.Duration(float64(base) * factor)
}
