package metrics

import "sync/atomic"

// Counters tracks pipeline activity for the admin endpoint.
type Counters struct {
	DatagramsReceived int64
	Malformed         int64
	Stale             int64
	UnknownOp         int64
	CommandsQueued    int64
	QueueFullDropped  int64
	SyncApplied       int64
	SyncDropped       int64
	Ticks             int64
	IntentsApplied    int64
	BroadcastsSent    int64
	SendFailures      int64
	TotalTickNs       int64
}

func (c *Counters) IncDatagrams() { atomic.AddInt64(&c.DatagramsReceived, 1) }
func (c *Counters) IncMalformed() { atomic.AddInt64(&c.Malformed, 1) }
func (c *Counters) IncStale() { atomic.AddInt64(&c.Stale, 1) }
func (c *Counters) IncUnknownOp() { atomic.AddInt64(&c.UnknownOp, 1) }
func (c *Counters) IncQueued() { atomic.AddInt64(&c.CommandsQueued, 1) }
func (c *Counters) IncQueueFull() { atomic.AddInt64(&c.QueueFullDropped, 1) }
func (c *Counters) IncSyncApplied() { atomic.AddInt64(&c.SyncApplied, 1) }
func (c *Counters) IncSyncDropped() { atomic.AddInt64(&c.SyncDropped, 1) }
func (c *Counters) AddIntents(n int) { atomic.AddInt64(&c.IntentsApplied, int64(n)) }
func (c *Counters) IncBroadcastSent() { atomic.AddInt64(&c.BroadcastsSent, 1) }
func (c *Counters) IncSendFailure() { atomic.AddInt64(&c.SendFailures, 1) }
func (c *Counters) AddTick(ns int64) {
	atomic.AddInt64(&c.Ticks, 1)
	atomic.AddInt64(&c.TotalTickNs, ns)
}

// Snapshot returns a read-only copy for HTTP output.
func (c *Counters) Snapshot() map[string]any {
	ticks := atomic.LoadInt64(&c.Ticks)
	total := atomic.LoadInt64(&c.TotalTickNs)
	var avgMs float64
	if ticks > 0 {
		avgMs = float64(total) / float64(ticks) / 1e6
	}
	return map[string]any{
		"datagrams_received": atomic.LoadInt64(&c.DatagramsReceived),
		"malformed":          atomic.LoadInt64(&c.Malformed),
		"stale":              atomic.LoadInt64(&c.Stale),
		"unknown_op":         atomic.LoadInt64(&c.UnknownOp),
		"commands_queued":    atomic.LoadInt64(&c.CommandsQueued),
		"queue_full_dropped": atomic.LoadInt64(&c.QueueFullDropped),
		"sync_applied":       atomic.LoadInt64(&c.SyncApplied),
		"sync_dropped":       atomic.LoadInt64(&c.SyncDropped),
		"tick_count":         ticks,
		"intents_applied":    atomic.LoadInt64(&c.IntentsApplied),
		"broadcasts_sent":    atomic.LoadInt64(&c.BroadcastsSent),
		"send_failures":      atomic.LoadInt64(&c.SendFailures),
		"avg_tick_ms":        avgMs,
	}
}
