package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_NilIsNoop(t *testing.T) {
	var tr *Tracker
	tr.Add(5, 10)
	tr.Stop()
	assert.Equal(t, Data{}, tr.Snapshot())
	assert.Nil(t, Start(nil, StageCollectingFiles, 0, 0))
}

func TestTracker_ConcurrentAdds(t *testing.T) {
	sink := make(chan Data, 16)
	tr := Start(sink, StageDuplicateFullHash, 1000, 0)
	require.NotNil(t, tr)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Add(1, 2)
			}
		}()
	}
	wg.Wait()
	tr.Stop()
	tr.Stop()

	snap := tr.Snapshot()
	assert.Equal(t, int64(1000), snap.Current)
	assert.Equal(t, uint64(2000), snap.BytesCurrent)
	assert.Equal(t, StageDuplicateFullHash, snap.Stage)

	// The final sample is always pushed when the sink has room.
	var last Data
	for len(sink) > 0 {
		last = <-sink
	}
	assert.Equal(t, int64(1000), last.Current)
}

func TestBar_Render(t *testing.T) {
	var buf bytes.Buffer
	bar := New(&buf)

	bar.Update(Data{Stage: StageImageHashing, Current: 5, Total: 10, BytesCurrent: 2048, BytesTotal: 4096})
	out := buf.String()
	assert.Contains(t, out, "hashing images")
	assert.Contains(t, out, " 50%")
	assert.Contains(t, out, "(5/10)")
	assert.Contains(t, out, "2.0 KiB/4.0 KiB")

	buf.Reset()
	bar.Update(Data{Stage: StageCollectingFiles, Current: 42})
	assert.Contains(t, buf.String(), "collecting files: 42 items")

	buf.Reset()
	bar.Finish()
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestBar_Disabled(t *testing.T) {
	bar := New(nil)
	bar.Update(Data{Current: 1, Total: 2})
	bar.Finish()
}
