package proxy

import (
	"sync"
)

// relayBufferSize is the largest chunk a pump moves per read.
const relayBufferSize = 1024

var relayBuffers = NewBufferPool(relayBufferSize)

// BufferPool recycles fixed-size byte slices.
type BufferPool struct {
	pool sync.Pool
}

func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *BufferPool) Get() *[]byte {
	return p.pool.Get().(*[]byte)
}

func (p *BufferPool) Put(b *[]byte) {
	p.pool.Put(b)
}
