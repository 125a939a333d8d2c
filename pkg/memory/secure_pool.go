package memory

import (
	"sync"
)

// SecureKeyPool recycles fixed-size key buffers and zeroes them on return.
type SecureKeyPool struct {
	pool *sync.Pool
	size int
}

func NewSecureKeyPool(size int) *SecureKeyPool {
	return &SecureKeyPool{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get returns a zeroed buffer of the pool's size.
func (p *SecureKeyPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put zeroes buf and returns it to the pool. Buffers of the wrong size are dropped.
func (p *SecureKeyPool) Put(buf []byte) {
	SecureZeroBytes(buf)
	if len(buf) != p.size {
		return
	}
	p.pool.Put(&buf)
}
