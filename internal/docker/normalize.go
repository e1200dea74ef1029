package docker

// Usage is container resource usage as percentages in [0,100].
type Usage struct {
	CPUPct float64
	MemPct float64
}

// NormalizeStats converts raw engine counters to percentages. CPU is
// expressed relative to the whole host so it never exceeds 100.
func NormalizeStats(s Stats) Usage {
	var u Usage
	if s.CPUStats.SystemCPUUsage > s.PreCPUStats.SystemCPUUsage &&
		s.CPUStats.CPUUsage.TotalUsage >= s.PreCPUStats.CPUUsage.TotalUsage {
		sysDelta := float64(s.CPUStats.SystemCPUUsage - s.PreCPUStats.SystemCPUUsage)
		cpuDelta := float64(s.CPUStats.CPUUsage.TotalUsage - s.PreCPUStats.CPUUsage.TotalUsage)
		u.CPUPct = cpuDelta * 100 / sysDelta
	}
	if s.MemoryStats.Limit > 0 {
		used := s.MemoryStats.Usage
		// cgroup v2 reports page cache as inactive_file; it is reclaimable
		if cache, ok := s.MemoryStats.Stats["inactive_file"]; ok && cache < used {
			used -= cache
		}
		u.MemPct = float64(used) * 100 / float64(s.MemoryStats.Limit)
	}
	u.CPUPct = clamp(u.CPUPct)
	u.MemPct = clamp(u.MemPct)
	return u
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
