package progress

import (
	"sync"
	"sync/atomic"
	"time"
)

type Stage int

const (
	StageCollectingFiles Stage = iota
	StageDuplicatePrehash
	StageDuplicateFullHash
	StageImageHashing
	StageImageComparing
	StageSymlinks
)

func (s Stage) String() string {
	switch s {
	case StageCollectingFiles:
		return "collecting files"
	case StageDuplicatePrehash:
		return "prehashing"
	case StageDuplicateFullHash:
		return "hashing"
	case StageImageHashing:
		return "hashing images"
	case StageImageComparing:
		return "comparing hashes"
	case StageSymlinks:
		return "checking symlinks"
	default:
		return "working"
	}
}

// Data is one progress sample pushed to the caller.
// Total is zero when the amount of work is not known up front.
type Data struct {
	Stage        Stage
	Current      int64
	Total        int64
	BytesCurrent uint64
	BytesTotal   uint64
}

const sampleInterval = 100 * time.Millisecond

// Tracker counts work items from many goroutines and periodically pushes
// samples to a channel. A nil *Tracker is valid and does nothing.
type Tracker struct {
	stage      Stage
	total      int64
	bytesTotal uint64
	current    atomic.Int64
	bytes      atomic.Uint64

	sink chan<- Data
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Start returns a tracker for one stage. With a nil sink it returns nil.
func Start(sink chan<- Data, stage Stage, total int64, bytesTotal uint64) *Tracker {
	if sink == nil {
		return nil
	}
	t := &Tracker{
		stage:      stage,
		total:      total,
		bytesTotal: bytesTotal,
		sink:       sink,
		done:       make(chan struct{}),
	}
	t.wg.Add(1)
	go t.loop()
	return t
}

func (t *Tracker) loop() {
	defer t.wg.Done()
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.push()
		case <-t.done:
			return
		}
	}
}

// push never blocks the sampler: a slow consumer just misses samples.
func (t *Tracker) push() {
	select {
	case t.sink <- t.Snapshot():
	default:
	}
}

// Add records n processed items totalling bytes.
func (t *Tracker) Add(n int64, bytes uint64) {
	if t == nil {
		return
	}
	t.current.Add(n)
	if bytes > 0 {
		t.bytes.Add(bytes)
	}
}

func (t *Tracker) Snapshot() Data {
	if t == nil {
		return Data{}
	}
	return Data{
		Stage:        t.stage,
		Current:      t.current.Load(),
		Total:        t.total,
		BytesCurrent: t.bytes.Load(),
		BytesTotal:   t.bytesTotal,
	}
}

// Stop ends sampling and pushes one final sample.
func (t *Tracker) Stop() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		t.push()
	})
}
