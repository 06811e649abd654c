package audio

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 RingBuffer 测试
// =============================================================================

func chunkOf(b ...byte) Chunk {
	return NewChunk(b, time.Now())
}

func TestRingBuffer_WriteReadRoundTrip(t *testing.T) {
	buf := NewRingBuffer(8)

	buf.Write(chunkOf('a', 'a'))
	buf.Write(chunkOf('b', 'b', 'b'))
	buf.Write(chunkOf('c'))

	require.Equal(t, 6, buf.Size())
	require.Equal(t, 3, buf.Len())

	got := buf.Read(6)
	assert.Equal(t, []byte("aabbbc"), got)
	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, buf.Len())
}

func TestRingBuffer_PartialReadKeepsRemainderAtHead(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Write(chunkOf(1, 2, 3, 4, 5))
	buf.Write(chunkOf(6, 7))

	first := buf.Read(3)
	assert.Equal(t, []byte{1, 2, 3}, first)
	assert.Equal(t, 4, buf.Size())
	assert.Equal(t, 2, buf.Len(), "remainder stays as its own chunk")

	second := buf.Read(2)
	assert.Equal(t, []byte{4, 5}, second, "remainder must be read first")

	rest := buf.Read(100)
	assert.Equal(t, []byte{6, 7}, rest)
}

func TestRingBuffer_ReadSpansChunksAndSplitsLast(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Write(chunkOf(1, 2))
	buf.Write(chunkOf(3, 4, 5))

	got := buf.Read(3)
	assert.Equal(t, []byte{1, 2, 3}, got)

	c, ok := buf.ReadChunk()
	require.True(t, ok)
	assert.Equal(t, []byte{4, 5}, c.Data)
}

func TestRingBuffer_DropOldestWhenFull(t *testing.T) {
	var hookBytes []int
	buf := NewRingBuffer(2, WithDropHook(func(n int) { hookBytes = append(hookBytes, n) }))

	buf.Write(chunkOf(1))
	buf.Write(chunkOf(2, 2))
	buf.Write(chunkOf(3, 3, 3))

	stats := buf.Stats()
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, uint64(1), stats.DroppedBytesTotal)
	assert.Equal(t, uint64(1), stats.DroppedChunks)
	assert.Equal(t, uint64(6), stats.TotalBytesWritten)
	assert.Equal(t, []int{1}, hookBytes)

	assert.Equal(t, []byte{2, 2, 3, 3, 3}, buf.Read(10))
}

func TestRingBuffer_EmptyBehaviour(t *testing.T) {
	buf := NewRingBuffer(2)

	assert.Nil(t, buf.Read(10))
	assert.Nil(t, buf.Read(0))
	_, ok := buf.ReadChunk()
	assert.False(t, ok)

	buf.Write(Chunk{})
	assert.Equal(t, 0, buf.Len(), "empty chunks are ignored")
}

func TestRingBuffer_WriteCopiesData(t *testing.T) {
	buf := NewRingBuffer(2)
	data := []byte{9, 9}
	buf.Write(NewChunk(data, time.Now()))
	data[0] = 0

	assert.Equal(t, []byte{9, 9}, buf.Read(2))
}

func TestRingBuffer_Clear(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Write(chunkOf(1, 2, 3))
	buf.Write(chunkOf(4))

	buf.Clear()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, uint64(4), buf.Stats().TotalBytesWritten)

	buf.Write(chunkOf(5))
	assert.Equal(t, []byte{5}, buf.Read(1))
}

func TestRingBuffer_NotifyCoalesces(t *testing.T) {
	buf := NewRingBuffer(4)
	buf.Write(chunkOf(1))
	buf.Write(chunkOf(2))

	select {
	case <-buf.Notify():
	default:
		t.Fatal("expected a notification after write")
	}

	select {
	case <-buf.Notify():
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestRingBuffer_DefaultCapacity(t *testing.T) {
	buf := NewRingBuffer(0)
	assert.Equal(t, DefaultMaxChunks, buf.Cap())
}

func TestRingBuffer_ConcurrentWritersSingleReader(t *testing.T) {
	buf := NewRingBuffer(64)

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				buf.Write(chunkOf(id, id))
			}
		}(byte(w))
	}

	var read int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			read += len(buf.Read(7))
		}
	}()

	wg.Wait()
	<-done

	stats := buf.Stats()
	assert.LessOrEqual(t, stats.Chunks, 64)
	assert.Equal(t, uint64(writers*perWriter*2), stats.TotalBytesWritten)
	assert.Equal(t, stats.TotalBytesWritten, uint64(read)+uint64(stats.Bytes)+stats.DroppedBytesTotal)
}

func TestEncodeWAV(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x00}, 100)
	wav, err := EncodeWAV(pcm, DefaultInputFormat())
	require.NoError(t, err)

	assert.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "data", string(wav[36:40]))

	_, err = EncodeWAV(pcm, Format{Encoding: EncodingMP3, SampleRate: 16000})
	assert.Error(t, err)
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "pcm_16000", DefaultOutputFormat().String())
	assert.Equal(t, "mp3_44100", Format{Encoding: EncodingMP3, SampleRate: 44100}.String())
	assert.Equal(t, 32000, DefaultInputFormat().BytesPerSecond())
}
