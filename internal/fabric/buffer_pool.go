package fabric

import (
	"sync"

	"github.com/joshuafuller/beacon/internal/protocol"
)

// bufferPool recycles MaxUDPPayload-sized receive buffers so the
// inbound-datagram hot path does not allocate once warmed up.
var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, protocol.MaxUDPPayload)
		return &buf
	},
}

// GetBuffer returns a pointer to a MaxUDPPayload-byte buffer from the pool.
// Callers must return it with PutBuffer once they are done copying out of it.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer zeroes and returns a buffer to the pool.
func PutBuffer(bufPtr *[]byte) {
	buf := *bufPtr
	for i := range buf {
		buf[i] = 0
	}
	bufferPool.Put(bufPtr)
}
