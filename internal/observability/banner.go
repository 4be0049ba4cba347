package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu serialises log output and banner writes.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{}
}

// PrintBanner writes the startup banner centred to the terminal width.
func PrintBanner(w io.Writer, subtitle string) {
	banner := `
   ___           __   _____           _ __     __
  / _ | ________/ /  / ___/__  ___  (_) /__  / /_
 / __ |/ __/ __/ _ \/ /__/ _ \/ _ \/ / / _ \/ __/
/_/ |_/_/  \__/_//_/\___/\___/ .__/_/_/\___/\__/
                            /_/
`
	lines := strings.Split(banner, "\n")
	if subtitle != "" {
		lines = append(lines, ">> "+subtitle+" <<", "")
	}

	width := termWidth()
	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range lines {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Fprintf(w, "%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan+l, colorReset)
	}
}

// StatusLine renders a one-line summary of the tracker and process memory.
func StatusLine(s Status, gateInFlight, gateWidth int64) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memMB := float64(m.Alloc) / 1024 / 1024
	totalMB := float64(m.Sys) / 1024 / 1024

	barWidth := 20
	memPercent := 0.0
	if totalMB > 0 {
		memPercent = memMB / totalMB
	}
	filled := clamp(int(memPercent*float64(barWidth)), 0, barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("▒", barWidth-filled)

	barColor := colorNeonCyan
	if memPercent > 0.7 {
		barColor = colorNeonMag
	}

	return fmt.Sprintf("%s[ RUNS ] active=%d ok=%d failed=%d cancelled=%d%s | gate %d/%d | up %s | %s%s %.1fMB%s",
		colorPurple, s.Active, s.Completed, s.Failed, s.Cancelled, colorReset,
		gateInFlight, gateWidth,
		s.Uptime,
		barColor, bar, memMB, colorReset,
	)
}
