package discover

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

func systemMemory() (MemInfo, error) {
	var mem MemInfo
	var total, available, free, buffers, cached uint64

	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return mem, err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			_, err = fmt.Sscanf(line, "MemTotal:%d", &total)
		case strings.HasPrefix(line, "MemAvailable:"):
			_, err = fmt.Sscanf(line, "MemAvailable:%d", &available)
		case strings.HasPrefix(line, "MemFree:"):
			_, err = fmt.Sscanf(line, "MemFree:%d", &free)
		case strings.HasPrefix(line, "Buffers:"):
			_, err = fmt.Sscanf(line, "Buffers:%d", &buffers)
		case strings.HasPrefix(line, "Cached:"):
			_, err = fmt.Sscanf(line, "Cached:%d", &cached)
		default:
			continue
		}
		if err != nil {
			return mem, err
		}
	}

	const kibiByte = 1024
	mem.TotalMemory = total * kibiByte
	if available > 0 {
		mem.FreeMemory = available * kibiByte
	} else {
		// Older kernels without MemAvailable
		mem.FreeMemory = (free + buffers + cached) * kibiByte
	}
	return mem, nil
}
