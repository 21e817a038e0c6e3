// Package quota enforces hourly and daily caps on outbound gateway sends.
// Counters persist in a bbolt file so a restart cannot reset an exhausted
// budget. A nil *Guard allows everything, so callers never branch on
// whether quota enforcement is configured.
package quota

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketQuota = []byte("send_quota")
	keyOutbound = []byte("outbound")
)

// Limits holds the configured caps. Zero means unlimited.
type Limits struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// Enabled reports whether any cap is set.
func (l Limits) Enabled() bool {
	return l.MessagesPerHour > 0 || l.MessagesPerDay > 0
}

// Counter tracks usage inside the current hour and day windows.
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Guard is a persisted send-budget counter.
type Guard struct {
	db            *bolt.DB
	limits        Limits
	flushInterval time.Duration

	mu      sync.Mutex
	counter Counter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Open opens (or creates) the quota database at path and loads the
// persisted counter. A background loop flushes the counter periodically.
func Open(path string, limits Limits, flushInterval time.Duration) (*Guard, error) {
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open quota database: %w", err)
	}

	g := &Guard{
		db:            db,
		limits:        limits,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketQuota)
		if err != nil {
			return err
		}
		if data := b.Get(keyOutbound); data != nil {
			return json.Unmarshal(data, &g.counter)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load quota counter: %w", err)
	}

	go g.persistLoop()

	return g, nil
}

// Allow checks the caps and, when the send fits, increments the counters.
func (g *Guard) Allow(now time.Time) bool {
	if g == nil {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetExpired(now)

	if g.limits.MessagesPerHour > 0 && g.counter.HourlyCount >= g.limits.MessagesPerHour {
		return false
	}
	if g.limits.MessagesPerDay > 0 && g.counter.DailyCount >= g.limits.MessagesPerDay {
		return false
	}

	g.counter.HourlyCount++
	g.counter.DailyCount++
	return true
}

// Stats returns a copy of the counter with expired windows zeroed.
func (g *Guard) Stats(now time.Time) Counter {
	if g == nil {
		return Counter{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	c := g.counter
	if now.Sub(c.HourStart) >= time.Hour {
		c.HourlyCount = 0
	}
	if now.Sub(c.DayStart) >= 24*time.Hour {
		c.DailyCount = 0
	}
	return c
}

// Stop persists the counter and closes the database.
func (g *Guard) Stop() error {
	if g == nil {
		return nil
	}

	var err error
	g.stopOnce.Do(func() {
		close(g.stopCh)
		if perr := g.persist(); perr != nil {
			err = perr
		}
		if cerr := g.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// resetExpired restarts counters whose window has passed. Caller holds mu.
func (g *Guard) resetExpired(now time.Time) {
	if g.counter.HourStart.IsZero() || now.Sub(g.counter.HourStart) >= time.Hour {
		g.counter.HourlyCount = 0
		g.counter.HourStart = now
	}
	if g.counter.DayStart.IsZero() || now.Sub(g.counter.DayStart) >= 24*time.Hour {
		g.counter.DailyCount = 0
		g.counter.DayStart = now
	}
}

func (g *Guard) persistLoop() {
	ticker := time.NewTicker(g.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			g.persist()
		}
	}
}

func (g *Guard) persist() error {
	g.mu.Lock()
	data, err := json.Marshal(g.counter)
	g.mu.Unlock()
	if err != nil {
		return err
	}

	return g.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuota).Put(keyOutbound, data)
	})
}
