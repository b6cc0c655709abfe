package types

import (
	"sync/atomic"
)

type StatisticsItem struct {
	Count uint64 `json:",omitempty"`
	Bytes uint64 `json:",omitempty"`
}

// PortStatistics is a snapshot of the counters of one output port.
type PortStatistics struct {
	Received  StatisticsItem
	Delivered StatisticsItem
	Dropped   StatisticsItem
	Truncated StatisticsItem
}

type CountersItem struct {
	Count atomic.Uint64
	Bytes atomic.Uint64
}

func (c *CountersItem) Increment(msgSize uint64) {
	c.Count.Add(1)
	c.Bytes.Add(msgSize)
}

func (c *CountersItem) ToStats() StatisticsItem {
	return StatisticsItem{
		Count: c.Count.Load(),
		Bytes: c.Bytes.Load(),
	}
}

type PortCounters struct {
	Received  CountersItem
	Delivered CountersItem
	Dropped   CountersItem
	Truncated CountersItem
}

func (c *PortCounters) ToStats() PortStatistics {
	return PortStatistics{
		Received:  c.Received.ToStats(),
		Delivered: c.Delivered.ToStats(),
		Dropped:   c.Dropped.ToStats(),
		Truncated: c.Truncated.ToStats(),
	}
}
