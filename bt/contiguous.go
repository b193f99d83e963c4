package bt

// ContiguousBuffers presents a chain of fixed-capacity byte buffers as a
// single logical write/read surface, so a block-oriented writer doesn't
// need one large contiguous allocation up front. No other package of this
// module uses it.
type ContiguousBuffers struct {
	buffers [][]byte
	cap     []int
	len     []int
}

// NewContiguousBuffers allocates len(capacities) buffers with the given
// capacities, in order.
func NewContiguousBuffers(capacities []int) *ContiguousBuffers {
	cb := &ContiguousBuffers{
		buffers: make([][]byte, len(capacities)),
		cap:     append([]int(nil), capacities...),
		len:     make([]int, len(capacities)),
	}
	for i, c := range capacities {
		cb.buffers[i] = make([]byte, c)
	}
	return cb
}

// Write fills buffers in order. Writing past the total capacity of the
// chain is a programmer error: the caller is expected to have sized the
// chain to match exactly what it intends to write.
func (cb *ContiguousBuffers) Write(data []byte) {
	for _, chunk := range cb.splitWrite(data) {
		i, d := chunk.index, chunk.data
		copy(cb.buffers[i][cb.len[i]:], d)
		cb.len[i] += len(d)
	}
}

type writeChunk struct {
	index int
	data  []byte
}

func (cb *ContiguousBuffers) splitWrite(data []byte) []writeChunk {
	var chunks []writeChunk
	for i := range cb.buffers {
		if len(data) == 0 {
			break
		}
		free := cb.cap[i] - cb.len[i]
		if free <= 0 {
			continue
		}
		n := free
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, writeChunk{index: i, data: data[:n]})
		data = data[n:]
	}
	if len(data) != 0 {
		panic("bt: ContiguousBuffers: write exceeds total capacity")
	}
	return chunks
}

// Read calls f once per non-empty buffer, in order, with the bytes written
// to it so far.
func (cb *ContiguousBuffers) Read(f func([]byte)) {
	for i, buf := range cb.buffers {
		if cb.len[i] == 0 {
			continue
		}
		f(buf[:cb.len[i]])
	}
}

// Len returns the total number of bytes written so far across all buffers.
func (cb *ContiguousBuffers) Len() int {
	total := 0
	for _, l := range cb.len {
		total += l
	}
	return total
}

// Cap returns the total capacity across all buffers.
func (cb *ContiguousBuffers) Cap() int {
	total := 0
	for _, c := range cb.cap {
		total += c
	}
	return total
}
