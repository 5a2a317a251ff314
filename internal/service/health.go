package service

import (
	"context"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const mb = 1024 * 1024

type MemoryStats struct {
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
	Total uint64 `json:"total"`
	Usage int    `json:"usage"`
}

type ProcessMemory struct {
	RSS        uint64 `json:"rss"`
	HeapUsed   uint64 `json:"heapUsed"`
	HeapTotal  uint64 `json:"heapTotal"`
	Goroutines int    `json:"goroutines"`
}

type CPUUsage struct {
	User   int64 `json:"user"`
	System int64 `json:"system"`
}

type ProcessStats struct {
	MemoryUsage ProcessMemory `json:"memoryUsage"`
	CPUUsage    CPUUsage      `json:"cpuUsage"`
}

type LoadAverage struct {
	One     float64 `json:"1min"`
	Five    float64 `json:"5min"`
	Fifteen float64 `json:"15min"`
}

type SystemStats struct {
	Memory      MemoryStats  `json:"memory"`
	Process     ProcessStats `json:"process"`
	LoadAverage LoadAverage  `json:"loadAverage"`
	Uptime      int64        `json:"uptime"`
	Platform    string       `json:"platform"`
	GoVersion   string       `json:"goVersion"`
}

type HealthReport struct {
	Status            string      `json:"status"`
	Timestamp         time.Time   `json:"timestamp"`
	ActiveConnections int         `json:"activeConnections"`
	System            SystemStats `json:"system"`
}

type HealthService struct {
	activeConnections func() int
	startedAt         time.Time
}

func NewHealthService(activeConnections func() int) *HealthService {
	return &HealthService{
		activeConnections: activeConnections,
		startedAt:         time.Now(),
	}
}

// Report gathers host and process statistics. Individual probes that fail
// are logged and left at zero.
func (s *HealthService) Report(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:            "OK",
		Timestamp:         time.Now().UTC(),
		ActiveConnections: s.activeConnections(),
		System: SystemStats{
			Uptime:    int64(time.Since(s.startedAt).Seconds()),
			Platform:  runtime.GOOS,
			GoVersion: runtime.Version(),
		},
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.Debug().Err(err).Msg("health: virtual memory unavailable")
	} else {
		used := vm.Total - vm.Free
		report.System.Memory = MemoryStats{
			Used:  used / mb,
			Free:  vm.Free / mb,
			Total: vm.Total / mb,
		}
		if vm.Total > 0 {
			report.System.Memory.Usage = int(math.Round(float64(used) / float64(vm.Total) * 100))
		}
	}

	if avg, err := load.AvgWithContext(ctx); err != nil {
		log.Debug().Err(err).Msg("health: load average unavailable")
	} else {
		report.System.LoadAverage = LoadAverage{
			One:     round2(avg.Load1),
			Five:    round2(avg.Load5),
			Fifteen: round2(avg.Load15),
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	report.System.Process.MemoryUsage = ProcessMemory{
		HeapUsed:   ms.HeapAlloc / mb,
		HeapTotal:  ms.HeapSys / mb,
		Goroutines: runtime.NumGoroutine(),
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		log.Debug().Err(err).Msg("health: process stats unavailable")
		return report
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
		report.System.Process.MemoryUsage.RSS = info.RSS / mb
	}
	if times, err := proc.TimesWithContext(ctx); err == nil {
		report.System.Process.CPUUsage = CPUUsage{
			User:   int64(times.User * 1000),
			System: int64(times.System * 1000),
		}
	}

	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
