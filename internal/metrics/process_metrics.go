package metrics

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessSample holds CPU and memory readings for the deskmate process.
type ProcessSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// SelfSampler collects resource usage of the running process on demand.
// Samples are kept in a fixed-size ring so callers can inspect recent
// history without unbounded growth.
type SelfSampler struct {
	proc *process.Process

	mu       sync.RWMutex
	samples  []ProcessSample
	maxSize  int
	startIdx int
	count    int
}

// NewSelfSampler creates a sampler for the current PID. maxHistory <= 0
// falls back to 100 entries.
func NewSelfSampler(maxHistory int) (*SelfSampler, error) {
	if maxHistory <= 0 {
		maxHistory = 100
	}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	return &SelfSampler{
		proc:    p,
		samples: make([]ProcessSample, maxHistory),
		maxSize: maxHistory,
	}, nil
}

// Collect takes one sample and appends it to the ring. CPU percent needs a
// prior call to be meaningful; the first reading may be zero.
func (s *SelfSampler) Collect() (ProcessSample, error) {
	cpuPercent, err := s.proc.CPUPercent()
	if err != nil {
		cpuPercent = 0
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		return ProcessSample{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	numThreads, err := s.proc.NumThreads()
	if err != nil {
		numThreads = 0
	}

	sample := ProcessSample{
		PID:        s.proc.Pid,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}

	s.mu.Lock()
	if s.count < s.maxSize {
		s.samples[s.count] = sample
		s.count++
	} else {
		s.samples[s.startIdx] = sample
		s.startIdx = (s.startIdx + 1) % s.maxSize
	}
	s.mu.Unlock()

	return sample, nil
}

// Latest returns the most recent sample, if any.
func (s *SelfSampler) Latest() (ProcessSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return ProcessSample{}, false
	}
	var idx int
	if s.count < s.maxSize {
		idx = s.count - 1
	} else {
		idx = (s.startIdx - 1 + s.maxSize) % s.maxSize
	}
	return s.samples[idx], true
}

// History returns the collected samples in chronological order.
func (s *SelfSampler) History() []ProcessSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return nil
	}
	result := make([]ProcessSample, s.count)
	if s.count < s.maxSize {
		copy(result, s.samples[:s.count])
	} else {
		n := copy(result, s.samples[s.startIdx:])
		copy(result[n:], s.samples[:s.startIdx])
	}
	return result
}
