//go:build unix

package monitor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// childUsage reads RUSAGE_CHILDREN: CPU and peak RSS of all waited-for children
func childUsage() (ChildUsage, error) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &ru); err != nil {
		return ChildUsage{}, err
	}

	cpu := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6 +
		float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6

	// ru_maxrss is bytes on darwin, kilobytes elsewhere
	maxRSS := uint64(ru.Maxrss)
	if runtime.GOOS != "darwin" {
		maxRSS *= 1024
	}

	return ChildUsage{
		CPUSeconds:  cpu,
		MaxRSSBytes: maxRSS,
		Reported:    true,
	}, nil
}
