package main

import (
	"strings"
	"time"
)

// GiftItem is an entry in an environment's gift/item catalog.
type GiftItem struct {
	ID       string `json:"id"`
	Env      string `json:"env"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Rarity   string `json:"rarity"`
	Price    int    `json:"price"`
	Stock    int    `json:"stock"`
}

// GameEvent is a time-boxed in-game event.
type GameEvent struct {
	ID       string    `json:"id"`
	Env      string    `json:"env"`
	Name     string    `json:"name"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Rewards  []string  `json:"rewards"`
	State    string    `json:"state"` // derived at query time
}

// Event states.
const (
	EventUpcoming = "upcoming"
	EventActive   = "active"
	EventEnded    = "ended"
)

func eventState(e GameEvent, now time.Time) string {
	switch {
	case now.Before(e.StartsAt):
		return EventUpcoming
	case now.Before(e.EndsAt):
		return EventActive
	default:
		return EventEnded
	}
}

// GiftFilter narrows ListGifts.
type GiftFilter struct {
	Env      string
	Category string
	Query    string
}

// ListGifts returns catalog items matching f.
func (c *Console) ListGifts(f GiftFilter) []GiftItem {
	q := strings.ToLower(f.Query)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []GiftItem{}
	for _, g := range c.gifts {
		if f.Env != "" && g.Env != f.Env {
			continue
		}
		if f.Category != "" && g.Category != f.Category {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(g.Name), q) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// ListGameEvents returns events in env (all envs when empty) whose derived
// state equals state (any state when empty).
func (c *Console) ListGameEvents(env, state string) []GameEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := []GameEvent{}
	for _, e := range c.events {
		if env != "" && e.Env != env {
			continue
		}
		e.State = eventState(e, now)
		if state != "" && e.State != state {
			continue
		}
		e.Rewards = append([]string{}, e.Rewards...)
		out = append(out, e)
	}
	return out
}

// SyncCounts reports how many records a sync copied.
type SyncCounts struct {
	Gifts  int `json:"gifts"`
	Events int `json:"events"`
}

// syncData copies the chosen datasets from source to target. Records in the
// target with the same name are replaced only when overwrite is set.
func (c *Console) syncData(source, target string, datasets []string, overwrite bool) (SyncCounts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasEnvLocked(source) || !c.hasEnvLocked(target) {
		return SyncCounts{}, invalidf("unknown environment")
	}
	var counts SyncCounts
	for _, ds := range datasets {
		switch ds {
		case DatasetGifts:
			counts.Gifts = c.syncGiftsLocked(source, target, overwrite)
		case DatasetEvents:
			counts.Events = c.syncEventsLocked(source, target, overwrite)
		}
	}
	c.notify(Event{Type: "sync-completed", Resource: "sync", ID: source + "->" + target})
	return counts, nil
}

func (c *Console) syncGiftsLocked(source, target string, overwrite bool) int {
	existing := map[string]int{}
	for i, g := range c.gifts {
		if g.Env == target {
			existing[g.Name] = i
		}
	}
	n := 0
	for _, g := range c.gifts {
		if g.Env != source {
			continue
		}
		copied := g
		copied.Env = target
		if i, ok := existing[g.Name]; ok {
			if !overwrite {
				continue
			}
			copied.ID = c.gifts[i].ID
			c.gifts[i] = copied
		} else {
			copied.ID = newID("gift")
			c.gifts = append(c.gifts, copied)
		}
		n++
	}
	return n
}

func (c *Console) syncEventsLocked(source, target string, overwrite bool) int {
	existing := map[string]int{}
	for i, e := range c.events {
		if e.Env == target {
			existing[e.Name] = i
		}
	}
	n := 0
	for _, e := range c.events {
		if e.Env != source {
			continue
		}
		copied := e
		copied.Env = target
		copied.Rewards = append([]string{}, e.Rewards...)
		if i, ok := existing[e.Name]; ok {
			if !overwrite {
				continue
			}
			copied.ID = c.events[i].ID
			c.events[i] = copied
		} else {
			copied.ID = newID("evt")
			c.events = append(c.events, copied)
		}
		n++
	}
	return n
}
