package profiler

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestProfiler(clock *fakeClock) *Profiler {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewProfiler(WithClock(clock.now), WithLogger(l), WithUpdateInterval(time.Second))
}

func TestFramesPerSecond(t *testing.T) {
	tests := []struct {
		ms   float64
		want float64
	}{
		{0, 0},
		{-3, 0},
		{10, 100},
		{16, 62.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, FramesPerSecond(tt.ms), 1e-9, "%v ms", tt.ms)
	}
}

func TestTickAveragesOncePerWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newTestProfiler(clock)

	p.Record(FrameSample{GPUTime: 2 * time.Millisecond, CPUTime: 4 * time.Millisecond})
	p.Record(FrameSample{GPUTime: 4 * time.Millisecond, CPUTime: 6 * time.Millisecond})

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, p.Tick())
	assert.Zero(t, p.Stats().TotalTimeMs)

	clock.t = clock.t.Add(600 * time.Millisecond)
	assert.True(t, p.Tick())

	s := p.Stats()
	assert.InDelta(t, 3, s.GPUTimeMs, 1e-9)
	assert.InDelta(t, 5, s.CPUTimeMs, 1e-9)
	assert.InDelta(t, 8, s.TotalTimeMs, 1e-9)
	assert.InDelta(t, 125, s.FramesPerSecond, 1e-9)
}

func TestHistoryIsBounded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newTestProfiler(clock)

	for i := 0; i < HistorySize; i++ {
		p.Record(FrameSample{CPUTime: 100 * time.Millisecond})
	}
	for i := 0; i < HistorySize; i++ {
		p.Record(FrameSample{CPUTime: 10 * time.Millisecond})
	}
	assert.Equal(t, HistorySize, p.Samples())

	p.Flush()
	assert.InDelta(t, 10, p.Stats().CPUTimeMs, 1e-9)
}

func TestReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := newTestProfiler(clock)
	p.Record(FrameSample{GPUTime: time.Millisecond})
	p.Flush()
	assert.NotZero(t, p.Stats().GPUTimeMs)

	p.Reset()
	assert.Zero(t, p.Samples())
	assert.Equal(t, RenderStats{}, p.Stats())
}
