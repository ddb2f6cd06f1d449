package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HistorySize is the number of frame samples averaged into RenderStats.
const HistorySize = 60

// FrameSample is the measured cost of one rendered frame.
type FrameSample struct {
	// GPUTime is the time spent waiting for submitted work to complete.
	GPUTime time.Duration
	// CPUTime is the time spent recording and submitting the frame.
	CPUTime time.Duration
}

// RenderStats summarizes recent rendering cost and resource usage.
type RenderStats struct {
	GPUTimeMs       float64
	CPUTimeMs       float64
	TotalTimeMs     float64
	FramesPerSecond float64
	GPUMemoryUsedMB float64

	TextureCount     int
	FramebufferCount int

	FramesRendered uint64
	EffectsApplied uint64
	EffectsFailed  uint64

	// HeapMB is the live Go heap at the last window.
	HeapMB float64
}

// Profiler keeps a bounded history of frame samples and averages it into RenderStats once per update window.
// Each window is also logged along with Go heap and GC statistics.
type Profiler struct {
	mu sync.Mutex

	logger         logrus.FieldLogger
	now            func() time.Time
	updateInterval time.Duration

	history [HistorySize]FrameSample
	next    int
	count   int

	frameCount     int
	lastTime       time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	stats RenderStats
}

// NewProfiler creates a new Profiler. The update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		logger:         logrus.StandardLogger(),
		now:            time.Now,
		updateInterval: time.Second,
	}
	for _, opt := range options {
		opt(p)
	}
	p.lastTime = p.now()
	return p
}

// Record appends a frame sample, evicting the oldest once HistorySize samples are held.
//
// Parameters:
//   - sample: the frame cost
func (p *Profiler) Record(sample FrameSample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history[p.next] = sample
	p.next = (p.next + 1) % HistorySize
	if p.count < HistorySize {
		p.count++
	}
}

// Samples returns the number of samples currently held.
func (p *Profiler) Samples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Tick should be called once per frame. When the update interval has elapsed it averages the history
// into the stats and logs them.
//
// Returns:
//   - bool: true if a window closed on this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	current := p.now()
	elapsed := current.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	p.average()

	runtime.ReadMemStats(&p.memStats)
	p.stats.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	allocRateMB := float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		start := p.lastGCCount
		if gcCount-start > 256 {
			start = gcCount - 256
		}
		for i := start; i < gcCount; i++ {
			maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"function":      "Tick",
		"frames":        p.frameCount,
		"gpu_ms":        p.stats.GPUTimeMs,
		"cpu_ms":        p.stats.CPUTimeMs,
		"fps":           p.stats.FramesPerSecond,
		"heap_mb":       p.stats.HeapMB,
		"alloc_rate_mb": allocRateMB,
		"gc":            gcCount,
		"gc_last_us":    lastPauseUs,
		"gc_max_us":     maxPauseUs,
	}).Debug("render stats")

	p.frameCount = 0
	p.lastTime = current
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Flush averages the history into the stats immediately, without waiting for the window to close.
func (p *Profiler) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.average()
}

// average requires p.mu.
func (p *Profiler) average() {
	if p.count == 0 {
		return
	}
	var gpu, cpu time.Duration
	for i := 0; i < p.count; i++ {
		gpu += p.history[i].GPUTime
		cpu += p.history[i].CPUTime
	}
	n := float64(p.count)
	p.stats.GPUTimeMs = float64(gpu) / float64(time.Millisecond) / n
	p.stats.CPUTimeMs = float64(cpu) / float64(time.Millisecond) / n
	p.stats.TotalTimeMs = p.stats.GPUTimeMs + p.stats.CPUTimeMs
	p.stats.FramesPerSecond = FramesPerSecond(p.stats.TotalTimeMs)
}

// FramesPerSecond converts an average frame time to a frame rate, returning 0 for non-positive times.
//
// Parameters:
//   - totalTimeMs: the average frame time in milliseconds
//
// Returns:
//   - float64: frames per second
func FramesPerSecond(totalTimeMs float64) float64 {
	if totalTimeMs <= 0 {
		return 0
	}
	return 1000 / totalTimeMs
}

// Stats returns the timing stats of the last closed window. Resource and counter fields are left zero
// for the caller to fill in.
func (p *Profiler) Stats() RenderStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reset clears the history and the stats.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = [HistorySize]FrameSample{}
	p.next = 0
	p.count = 0
	p.frameCount = 0
	p.stats = RenderStats{}
	p.lastTime = p.now()
}
