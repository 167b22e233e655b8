package aggregate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/model"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func packet(src string, offset time.Duration, port, length int, proto string) model.Packet {
	return model.Packet{SourceIP: src, Timestamp: epoch.Add(offset), Port: port, Length: length, Protocol: proto}
}

func TestSnapshot_Metrics(t *testing.T) {
	a := New(8)
	a.Observe(packet("10.0.0.1", 0, 80, 100, "TCP"))
	a.Observe(packet("10.0.0.1", 2*time.Second, 443, 300, "TLS"))
	a.Observe(packet("10.0.0.1", time.Second, 80, 200, "TCP"))
	a.Observe(packet("10.0.0.1", 4*time.Second, 0, 400, "ICMP"))

	records := a.Snapshot(1)
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, "10.0.0.1", r.SourceIP)
	assert.Equal(t, 4, r.PacketCount)
	assert.Equal(t, int64(1000), r.TotalBytes)
	assert.InDelta(t, 250, r.AveragePacketSize, 1e-9)
	assert.InDelta(t, 4, r.Duration, 1e-9)
	assert.InDelta(t, 1, r.PacketsPerSecond, 1e-9)
	assert.Equal(t, 2, r.UniquePorts)
	assert.Equal(t, []string{"ICMP", "TCP", "TLS"}, r.Protocols)
}

func TestSnapshot_SingleInstantUsesMinimumDuration(t *testing.T) {
	a := New(1)
	a.Observe(packet("10.0.0.2", 0, 22, 60, "SSH"))
	a.Observe(packet("10.0.0.2", 0, 22, 60, "SSH"))

	r := a.Snapshot(2)[0]
	assert.Equal(t, minDuration, r.Duration)
	assert.InDelta(t, 2000, r.PacketsPerSecond, 1e-6)
}

func TestSnapshot_FirstSeenOrderAndThreshold(t *testing.T) {
	a := New(16)
	for i := 0; i < 20; i++ {
		ip := fmt.Sprintf("10.0.1.%d", i)
		a.Observe(packet(ip, 0, 80, 64, "TCP"))
		if i%2 == 0 {
			a.Observe(packet(ip, time.Second, 81, 64, "TCP"))
		}
	}

	all := a.Snapshot(1)
	require.Len(t, all, 20)
	for i, r := range all {
		assert.Equal(t, fmt.Sprintf("10.0.1.%d", i), r.SourceIP)
	}

	busy := a.Snapshot(2)
	require.Len(t, busy, 10)
	assert.Equal(t, "10.0.1.0", busy[0].SourceIP)
	assert.Equal(t, "10.0.1.18", busy[9].SourceIP)
}

func TestObserve_IgnoresMissingSource(t *testing.T) {
	a := New(4)
	a.Observe(model.Packet{Length: 10})
	assert.Zero(t, a.Len())
}

func TestLookupAndDrain(t *testing.T) {
	a := New(4)
	a.Observe(packet("10.0.0.3", 0, 25, 90, "SMTP"))

	r, ok := a.Lookup("10.0.0.3")
	require.True(t, ok)
	assert.Equal(t, 1, r.PacketCount)

	_, ok = a.Lookup("10.9.9.9")
	assert.False(t, ok)

	drained := a.Drain(1)
	require.Len(t, drained, 1)
	assert.Equal(t, "10.0.0.3", drained[0].SourceIP)
	assert.Zero(t, a.Len())
	assert.Empty(t, a.Snapshot(0))
	assert.Empty(t, a.Drain(0))
}

func TestDrain_CountsEveryPacketOnce(t *testing.T) {
	a := New(8)
	const workers, perWorker = 4, 20000

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a.Observe(packet(fmt.Sprintf("10.2.%d.%d", w, i%50), time.Duration(i)*time.Millisecond, 80, 64, "TCP"))
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	counted := 0
	windows := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		for _, r := range a.Drain(1) {
			counted += r.PacketCount
		}
		windows++
	}

	assert.Equal(t, workers*perWorker, counted)
	assert.Positive(t, windows)
	assert.Zero(t, a.Len())
}

func TestObserve_Concurrent(t *testing.T) {
	a := New(32)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				a.Observe(packet(fmt.Sprintf("10.1.0.%d", i%10), time.Duration(i)*time.Millisecond, 1000+w, 100, "UDP"))
			}
		}(w)
	}
	wg.Wait()

	records := a.Snapshot(1)
	require.Len(t, records, 10)
	total := 0
	for _, r := range records {
		total += r.PacketCount
		assert.Equal(t, 8, r.UniquePorts)
	}
	assert.Equal(t, 4000, total)
}

func TestSummarize(t *testing.T) {
	packets := []model.Packet{
		packet("b", 0, 1, 10, "UDP"),
		packet("a", 0, 1, 10, "UDP"),
		packet("b", time.Second, 2, 30, "UDP"),
	}
	records := Summarize(packets, 2)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].SourceIP)
	assert.InDelta(t, 20, records[0].AveragePacketSize, 1e-9)
}
