package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// Bar renders progress samples on a terminal line.
type Bar struct {
	width    int
	writer   io.Writer
	mu       sync.Mutex
	enabled  bool
	last     Data
	throttle rate.Sometimes
	started  time.Time
}

func New(writer io.Writer) *Bar {
	return &Bar{
		width:    40,
		writer:   writer,
		enabled:  writer != nil,
		throttle: rate.Sometimes{Interval: 100 * time.Millisecond},
		started:  time.Now(),
	}
}

// IsTerminal reports whether stderr is a character device.
func IsTerminal() bool {
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Run consumes samples until ch is closed, then finishes the line.
func (b *Bar) Run(ch <-chan Data) {
	for d := range ch {
		b.Update(d)
	}
	b.Finish()
}

func (b *Bar) Update(d Data) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	stageChanged := d.Stage != b.last.Stage
	b.last = d
	if stageChanged {
		b.render()
		return
	}
	// Update at most every 100ms to reduce flickering
	b.throttle.Do(b.render)
}

// render must be called with mu already locked
func (b *Bar) render() {
	d := b.last

	if d.Total <= 0 {
		fmt.Fprintf(b.writer, "\r\033[K%s: %d items%s", d.Stage, d.Current, b.bytesSuffix(d))
		return
	}

	percent := float64(d.Current) / float64(d.Total) * 100
	filledWidth := int(float64(b.width) * float64(d.Current) / float64(d.Total))
	if filledWidth > b.width {
		filledWidth = b.width
	}

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K%s [%s] %3d%% (%d/%d)%s",
		d.Stage, bar, int(percent), d.Current, d.Total, b.bytesSuffix(d))
}

func (b *Bar) bytesSuffix(d Data) string {
	if d.BytesTotal > 0 {
		return fmt.Sprintf(" | %s/%s", humanize.IBytes(d.BytesCurrent), humanize.IBytes(d.BytesTotal))
	}
	if d.BytesCurrent > 0 {
		return " | " + humanize.IBytes(d.BytesCurrent)
	}
	return ""
}

func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.render()
	fmt.Fprintf(b.writer, " in %s\n", time.Since(b.started).Round(time.Millisecond))
}
