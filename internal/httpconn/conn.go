// per-connection HTTP/1.1 state machine: buffering, parsing, request
// execution, and scatter/gather response writes.
//
// grounded on original_source/http/http_connection.{h,cpp}: the same
// fixed-size read/write buffers and two-level state machine (line scanner
// feeding an outer request parser), generalized from the original's
// single static http_connection[MAX_FD] array into one Conn value per
// accepted socket, owned by the reactor's connection table.
package httpconn

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/kfcemployee/webserver/internal/logging"
)

const (
	readBufferSize  = 2048
	writeBufferSize = 1024
)

// Method is the HTTP request method; only GET and POST are recognized.
type Method int

const (
	MethodGET Method = iota
	MethodPOST
)

// Code mirrors the original's HTTP_CODE enum: it doubles as both the
// parse-progress signal (NoRequest) and the final disposition handed to
// response assembly.
type Code int

const (
	NoRequest Code = iota
	GetRequest
	BadRequest
	InternalError
	NoResource
	Forbidden
	FileRequest
)

type checkState int

const (
	checkRequestLine checkState = iota
	checkHeader
	checkBody
)

type lineState int

const (
	lineOK lineState = iota
	lineBad
	lineOpen
)

// TriggerMode selects the read-once discipline: level-triggered (one recv
// per readiness notification, matching connfdLT) or edge-triggered (loop
// until EAGAIN, matching connfdET).
type TriggerMode int

const (
	LevelTriggered TriggerMode = iota
	EdgeTriggered
)

// Deps are the handles a Conn needs to execute application-level requests
// (register/login) and to resolve static assets, injected rather than
// reached through globals/singletons.
type Deps struct {
	DocRoot string
	Users   *UserStore
	Log     *logging.Logger
	Mode    TriggerMode
}

// Conn holds one client connection's parse/response state. It is reused
// across keep-alive requests via reset, the way the original's init()
// re-primes a slot in the fixed http_connection array.
type Conn struct {
	Fd   int
	deps Deps

	readBuf    [readBufferSize]byte
	readIdx    int
	checkedIdx int
	startLine  int

	writeBuf [writeBufferSize]byte
	writeIdx int

	check checkState

	method  Method
	cgi     bool
	url     string
	version string

	host          string
	contentLength int
	linger        bool

	realFile string
	fileData []byte // mmap'd region, nil when no file is mapped
	fileSize int64

	userInfo string

	iov       [2][]byte
	iovCount  int
	bytesSent int
	bytesLeft int
}

// New wraps an already-accepted, already-nonblocking fd.
func New(fd int, deps Deps) *Conn {
	c := &Conn{Fd: fd, deps: deps}
	c.reset()
	return c
}

// reset re-primes parse/response state for the next request on this fd,
// the Go analog of the original's private init().
func (c *Conn) reset() {
	c.readIdx, c.checkedIdx, c.startLine = 0, 0, 0
	c.writeIdx = 0
	c.check = checkRequestLine
	c.method = MethodGET
	c.cgi = false
	c.url, c.version = "", ""
	c.host = ""
	c.contentLength = 0
	c.linger = false
	c.realFile = ""
	c.unmap()
	c.userInfo = ""
	c.bytesSent, c.bytesLeft = 0, 0
	c.iovCount = 0
}

func (c *Conn) unmap() {
	if c.fileData != nil {
		unix.Munmap(c.fileData)
		c.fileData = nil
	}
}

// Close releases the file mapping (if any) and closes the underlying fd.
// It does not touch the epoll registration; the reactor owns that.
func (c *Conn) Close() {
	c.unmap()
	unix.Close(c.Fd)
}

// addResponse appends formatted text to the write buffer, failing if it
// would overflow writeBufferSize the way add_response does.
func (c *Conn) addResponse(format string, args ...any) bool {
	if c.writeIdx >= writeBufferSize-1 {
		return false
	}
	s := fmt.Sprintf(format, args...)
	if c.writeIdx+len(s) >= writeBufferSize-1 {
		return false
	}
	copy(c.writeBuf[c.writeIdx:], s)
	c.writeIdx += len(s)
	if c.deps.Log != nil {
		c.deps.Log.Infof("request: %s", string(c.writeBuf[:c.writeIdx]))
		c.deps.Log.Flush()
	}
	return true
}

func (c *Conn) addStatusLine(status int, title string) bool {
	return c.addResponse("%s %d %s\r\n", "HTTP/1.1", status, title)
}

func (c *Conn) addHeaders(contentLength int) bool {
	conn := "close"
	if c.linger {
		conn = "keep-alive"
	}
	return c.addResponse("Content-Length:%d\r\nConnection:%s\r\n", contentLength, conn)
}

func (c *Conn) addBlankLine() bool { return c.addResponse("\r\n") }
func (c *Conn) addContent(body string) bool { return c.addResponse("%s", body) }

// statFileMode reports whether path exists, is world-readable, and is a
// directory, matching the exec_request stat() checks.
func statFileMode(path string) (exists, worldReadable, isDir bool, size int64) {
	info, err := os.Stat(path)
	if err != nil {
		return false, false, false, 0
	}
	mode := info.Mode()
	worldReadable = mode.Perm()&0o004 != 0
	return true, worldReadable, info.IsDir(), info.Size()
}

func splitAmpersandField(body, name string) (string, bool) {
	prefix := name + "="
	idx := strings.Index(body, prefix)
	if idx < 0 {
		return "", false
	}
	rest := body[idx+len(prefix):]
	if amp := strings.IndexByte(rest, '&'); amp >= 0 {
		return rest[:amp], true
	}
	return rest, true
}

// parseCredentials extracts name/password from a "user=<name>&password=<pwd>"
// POST body. Each field is found by its name and ends at the next '&' or
// at the end of the body; the order of the two fields is not checked.
func parseCredentials(body string) (name, password string, ok bool) {
	name, ok1 := splitAmpersandField(body, "user")
	password, ok2 := splitAmpersandField(body, "password")
	return name, password, ok1 && ok2
}
