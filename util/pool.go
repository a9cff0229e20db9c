package util

import "sync"

// ReplyBufSize bounds how much of a datagram reply a probe reads.  The
// content is never inspected; only the fact that a reply arrived.
const ReplyBufSize = 512

// replyPool recycles datagram reply buffers.  A wide UDP sweep would
// otherwise allocate one buffer per port.
var replyPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, ReplyBufSize)
		return &buf
	},
}

// GetReplyBuf retrieves a reply buffer from the pool.  Callers must
// return it with [PutReplyBuf] when finished.
func GetReplyBuf() *[]byte {
	return replyPool.Get().(*[]byte)
}

// PutReplyBuf returns a buffer to the pool for reuse.  Buffers of the
// wrong size are dropped.
func PutReplyBuf(buf *[]byte) {
	if buf == nil || len(*buf) != ReplyBufSize {
		return
	}
	replyPool.Put(buf)
}
