// Package device reports hardware memory figures used by admission control.
package device

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jaypipes/ghw"
)

const bytesPerGB = 1024 * 1024 * 1024

// Memory is a point-in-time snapshot of device memory.
type Memory struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
}

// Info provides memory figures. Admission control depends only on this
// interface so tests can pin the numbers.
type Info interface {
	TotalMemoryGB() (float64, error)
	Refresh() (Memory, error)
}

// Hardware reads real device memory. A non-zero override replaces the
// detected total, which is useful on hosts where ghw cannot probe.
type Hardware struct {
	OverrideTotalGB float64
}

// NewHardware returns a detector with an optional configured total override.
func NewHardware(overrideTotalGB float64) *Hardware {
	return &Hardware{OverrideTotalGB: overrideTotalGB}
}

func (h *Hardware) TotalMemoryGB() (float64, error) {
	if h.OverrideTotalGB > 0 {
		return h.OverrideTotalGB, nil
	}
	mem, err := ghw.Memory()
	if err != nil {
		return 0, fmt.Errorf("probe memory: %w", err)
	}
	if mem.TotalPhysicalBytes <= 0 {
		return 0, fmt.Errorf("probe memory: no physical size reported")
	}
	return float64(mem.TotalPhysicalBytes) / bytesPerGB, nil
}

func (h *Hardware) Refresh() (Memory, error) {
	total, err := h.TotalMemoryGB()
	if err != nil {
		return Memory{}, err
	}
	// ghw has no runtime availability figure; /proc/meminfo fills the gap on
	// Linux. Elsewhere availability degrades to the total.
	avail := readMemAvailableGB()
	if avail <= 0 || avail > total {
		avail = total
	}
	return Memory{TotalGB: total, UsedGB: total - avail, AvailableGB: avail}, nil
}

func readMemAvailableGB() float64 {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return float64(kb) * 1024 / bytesPerGB
	}
	return 0
}

// Static returns fixed figures; used by tests and by configs that pin memory.
type Static struct {
	Total     float64
	Available float64
}

func (s Static) TotalMemoryGB() (float64, error) { return s.Total, nil }

func (s Static) Refresh() (Memory, error) {
	avail := s.Available
	if avail <= 0 {
		avail = s.Total
	}
	return Memory{TotalGB: s.Total, UsedGB: s.Total - avail, AvailableGB: avail}, nil
}
