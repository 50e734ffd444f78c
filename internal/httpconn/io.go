package httpconn

import (
	"golang.org/x/sys/unix"
)

// ReadOnce pulls bytes into the read buffer. Level-triggered mode issues
// one read; edge-triggered mode loops until EAGAIN, per connfdLT/connfdET
// in the original.
func (c *Conn) ReadOnce() bool {
	if c.readIdx >= readBufferSize {
		return false
	}

	if c.deps.Mode == LevelTriggered {
		n, err := unix.Read(c.Fd, c.readBuf[c.readIdx:])
		if n <= 0 || err != nil {
			return false
		}
		c.readIdx += n
		return true
	}

	for {
		n, err := unix.Read(c.Fd, c.readBuf[c.readIdx:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			return false
		}
		if n == 0 {
			return false
		}
		c.readIdx += n
		if c.readIdx >= readBufferSize {
			break
		}
	}
	return true
}

// Outcome tells the reactor what to do after Process runs.
type Outcome int

const (
	OutcomeNeedMore Outcome = iota
	OutcomeWriteReady
	OutcomeError
)

// Process runs the parser to completion (or exhaustion) and, on a
// complete request, assembles the response. It does no socket I/O; a
// register request waits for a DB lease and the users mutex.
func (c *Conn) Process() Outcome {
	code := c.processRead()
	if code == NoRequest {
		return OutcomeNeedMore
	}
	if !c.processWrite(code) {
		return OutcomeError
	}
	return OutcomeWriteReady
}

// WriteResult tells the reactor how to re-arm the connection after Write.
type WriteResult int

const (
	WriteAgain WriteResult = iota // EAGAIN: keep EPOLLOUT interest, try later
	WriteDoneKeepAlive
	WriteDoneClose
	WriteFailed
)

// Write drains the scatter vector with writev, advancing iov bookkeeping
// exactly as the original's write() loop does.
func (c *Conn) Write() WriteResult {
	if c.bytesLeft == 0 {
		c.reset()
		return WriteDoneKeepAlive
	}

	for {
		iovs := c.iov[:c.iovCount]
		n, err := unix.Writev(c.Fd, iovs)
		if err != nil {
			if err == unix.EAGAIN {
				return WriteAgain
			}
			c.unmap()
			return WriteFailed
		}

		sent := int(n)
		c.bytesSent += sent
		c.bytesLeft -= sent

		headerLen := c.writeIdx
		if c.bytesSent >= headerLen {
			base := c.bytesSent - headerLen
			if c.fileData != nil && base < len(c.fileData) {
				c.iov[0] = c.fileData[base:]
			} else {
				c.iov[0] = nil
			}
			c.iovCount = 1
		} else {
			c.iov[0] = c.writeBuf[c.bytesSent:c.writeIdx]
		}

		if c.bytesLeft <= 0 {
			c.unmap()
			if c.linger {
				c.reset()
				return WriteDoneKeepAlive
			}
			return WriteDoneClose
		}
	}
}
