// Package aggregate turns a stream of packets into per-source traffic metrics.
package aggregate

import (
	"cmp"
	"hash/fnv"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"TrafficSentry/internal/model"
)

const (
	defaultShardCount = 64
	maxShardCount     = 32768

	// minDuration is the observation window assigned to sources seen at a single instant.
	minDuration = 0.001
)

type source struct {
	seq       uint64
	firstSeen time.Time
	lastSeen  time.Time
	packets   int
	bytes     int64
	protocols map[string]struct{}
	ports     map[int]struct{}
}

type shard struct {
	mu      sync.Mutex
	sources map[string]*source
}

// Aggregator accumulates per-source metrics over one observation window. It is safe for
// concurrent use; sources are spread over mutex-guarded shards by address hash.
type Aggregator struct {
	shards []*shard
	seq    atomic.Uint64
}

// New creates an aggregator with the given number of shards.
func New(numShards uint32) *Aggregator {
	if numShards == 0 || numShards >= maxShardCount {
		numShards = defaultShardCount
	}
	a := &Aggregator{shards: make([]*shard, numShards)}
	for i := range a.shards {
		a.shards[i] = &shard{sources: make(map[string]*source)}
	}
	return a
}

func (a *Aggregator) shardFor(ip string) *shard {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return a.shards[h.Sum32()%uint32(len(a.shards))]
}

// Observe adds one packet to its source's metrics. Packets without a source address are ignored.
func (a *Aggregator) Observe(p model.Packet) {
	if p.SourceIP == "" {
		return
	}

	s := a.shardFor(p.SourceIP)
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[p.SourceIP]
	if !ok {
		src = &source{
			seq:       a.seq.Add(1),
			firstSeen: p.Timestamp,
			lastSeen:  p.Timestamp,
			protocols: make(map[string]struct{}),
			ports:     make(map[int]struct{}),
		}
		s.sources[p.SourceIP] = src
	}

	src.packets++
	src.bytes += int64(max(p.Length, 0))
	if p.Timestamp.Before(src.firstSeen) {
		src.firstSeen = p.Timestamp
	}
	if p.Timestamp.After(src.lastSeen) {
		src.lastSeen = p.Timestamp
	}
	if p.Protocol != "" {
		src.protocols[p.Protocol] = struct{}{}
	}
	if p.Port > 0 {
		src.ports[p.Port] = struct{}{}
	}
}

type entry struct {
	seq    uint64
	record model.SourceRecord
}

// Snapshot returns the metrics of every source with at least minPackets packets, in the
// order the sources were first observed. The window keeps accumulating.
func (a *Aggregator) Snapshot(minPackets int) []model.SourceRecord {
	var entries []entry
	dropped := 0
	for _, s := range a.shards {
		s.mu.Lock()
		entries, dropped = collect(s.sources, minPackets, entries, dropped)
		s.mu.Unlock()
	}
	return ordered(entries, dropped, minPackets)
}

// Drain closes the current window and returns its metrics like Snapshot. Each shard is
// swapped for an empty one under its lock, so every observed packet lands in exactly one
// drained window.
func (a *Aggregator) Drain(minPackets int) []model.SourceRecord {
	detached := make([]map[string]*source, len(a.shards))
	for i, s := range a.shards {
		s.mu.Lock()
		detached[i] = s.sources
		s.sources = make(map[string]*source, len(detached[i]))
		s.mu.Unlock()
	}

	var entries []entry
	dropped := 0
	for _, sources := range detached {
		entries, dropped = collect(sources, minPackets, entries, dropped)
	}
	return ordered(entries, dropped, minPackets)
}

func collect(sources map[string]*source, minPackets int, entries []entry, dropped int) ([]entry, int) {
	for ip, src := range sources {
		if src.packets < minPackets {
			dropped++
			continue
		}
		entries = append(entries, entry{seq: src.seq, record: src.record(ip)})
	}
	return entries, dropped
}

func ordered(entries []entry, dropped, minPackets int) []model.SourceRecord {
	slices.SortFunc(entries, func(x, y entry) int { return cmp.Compare(x.seq, y.seq) })

	out := make([]model.SourceRecord, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	if dropped > 0 {
		log.Debug().Int("dropped", dropped).Int("min_packets", minPackets).Msg("Skipped sources below the packet threshold")
	}
	return out
}

// Lookup returns the current metrics of one source.
func (a *Aggregator) Lookup(ip string) (model.SourceRecord, bool) {
	s := a.shardFor(ip)
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[ip]
	if !ok {
		return model.SourceRecord{}, false
	}
	return src.record(ip), true
}

// Len returns the number of sources observed in the current window.
func (a *Aggregator) Len() int {
	n := 0
	for _, s := range a.shards {
		s.mu.Lock()
		n += len(s.sources)
		s.mu.Unlock()
	}
	return n
}

func (src *source) record(ip string) model.SourceRecord {
	duration := src.lastSeen.Sub(src.firstSeen).Seconds()
	if duration <= 0 {
		duration = minDuration
	}

	protocols := make([]string, 0, len(src.protocols))
	for p := range src.protocols {
		protocols = append(protocols, p)
	}
	slices.Sort(protocols)

	return model.SourceRecord{
		SourceIP:          ip,
		PacketsPerSecond:  float64(src.packets) / duration,
		PacketCount:       src.packets,
		AveragePacketSize: float64(src.bytes) / float64(src.packets),
		UniquePorts:       len(src.ports),
		TotalBytes:        src.bytes,
		Duration:          duration,
		Protocols:         protocols,
	}
}

// Summarize aggregates a finite packet list in one pass.
func Summarize(packets []model.Packet, minPackets int) []model.SourceRecord {
	a := New(defaultShardCount)
	for _, p := range packets {
		a.Observe(p)
	}
	return a.Snapshot(minPackets)
}
