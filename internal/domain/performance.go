package domain

import "time"

// Pure derivations backing the performance pages. All functions are
// stateless over the latest subscribed snapshot.

// StatusCounts tallies events per lifecycle status.
type StatusCounts struct {
	Planejado int `json:"planejado"`
	Realizado int `json:"realizado"`
	Cancelado int `json:"cancelado"`
}

func (c *StatusCounts) add(s EventStatus) {
	switch s {
	case StatusPlanejado:
		c.Planejado++
	case StatusRealizado:
		c.Realizado++
	case StatusCancelado:
		c.Cancelado++
	}
}

// CountByStatus tallies the whole slice.
func CountByStatus(events []Event) StatusCounts {
	var c StatusCounts
	for i := range events {
		c.add(events[i].Status)
	}
	return c
}

// CountByCategory groups events by category.
func CountByCategory(events []Event) map[EventCategory]int {
	m := make(map[EventCategory]int)
	for i := range events {
		m[events[i].Category]++
	}
	return m
}

// CountByAgent groups events by the assigned profile id.
func CountByAgent(events []Event) map[string]StatusCounts {
	m := make(map[string]StatusCounts)
	for i := range events {
		c := m[events[i].AssignedTo]
		c.add(events[i].Status)
		m[events[i].AssignedTo] = c
	}
	return m
}

// CountByMonth groups events by the "YYYY-MM" of their start date.
// Events whose start date does not parse are skipped.
func CountByMonth(events []Event) map[string]int {
	m := make(map[string]int)
	for i := range events {
		t, ok := parseWireTime(events[i].StartDate)
		if !ok {
			continue
		}
		m[t.Format("2006-01")]++
	}
	return m
}

// RealizedCount is the derived group-goal progress: the number of
// events carried out, optionally scoped to [from, to] on start date.
// Empty bounds mean unbounded.
func RealizedCount(events []Event, from, to string) int {
	n := 0
	for i := range events {
		ev := &events[i]
		if ev.Status != StatusRealizado {
			continue
		}
		if from != "" && ev.StartDate < from {
			continue
		}
		if to != "" && ev.StartDate > to {
			continue
		}
		n++
	}
	return n
}

func parseWireTime(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
