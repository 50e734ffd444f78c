package httpconn

import (
	"strconv"
	"strings"
)

// parseLine is the inner state machine: it walks readBuf[checkedIdx:readIdx]
// looking for a "\r\n" line terminator and normalizes it to "\0\0" in
// place, exactly as the original's parse_line does.
func (c *Conn) parseLine() lineState {
	for ; c.checkedIdx < c.readIdx; c.checkedIdx++ {
		b := c.readBuf[c.checkedIdx]
		if b == '\r' {
			if c.checkedIdx+1 == c.readIdx {
				return lineOpen
			}
			if c.readBuf[c.checkedIdx+1] == '\n' {
				c.readBuf[c.checkedIdx] = 0
				c.readBuf[c.checkedIdx+1] = 0
				c.checkedIdx += 2
				return lineOK
			}
			return lineBad
		}
		if b == '\n' {
			if c.checkedIdx > 0 && c.readBuf[c.checkedIdx-1] == '\r' {
				c.readBuf[c.checkedIdx-1] = 0
				c.readBuf[c.checkedIdx] = 0
				c.checkedIdx++
				return lineOK
			}
			return lineBad
		}
	}
	return lineOpen
}

// lineText returns the current line as a Go string, stopping at the first
// NUL the line scanner wrote (or at readIdx if none is found yet).
func (c *Conn) lineText(start int) string {
	end := start
	for end < c.readIdx && c.readBuf[end] != 0 {
		end++
	}
	return string(c.readBuf[start:end])
}

// processRead drives the outer state machine across as many complete
// lines (or, in CheckBody, as much buffered data) as are available,
// returning NoRequest when more bytes are needed.
func (c *Conn) processRead() Code {
	ls := lineOK

	for {
		if c.check == checkBody {
			if ls != lineOK {
				break
			}
		} else {
			ls = c.parseLine()
			if ls != lineOK {
				break
			}
		}

		text := c.lineText(c.startLine)
		c.startLine = c.checkedIdx

		switch c.check {
		case checkRequestLine:
			ret := c.parseRequestLine(text)
			if ret == BadRequest {
				return BadRequest
			}
		case checkHeader:
			ret := c.parseHeaders(text)
			if ret == BadRequest {
				return BadRequest
			}
			if ret == GetRequest {
				return c.execRequest()
			}
		case checkBody:
			ret := c.parseContent(text)
			if ret == GetRequest {
				return c.execRequest()
			}
			ls = lineOpen
		default:
			return InternalError
		}
	}
	return NoRequest
}

// parseRequestLine splits "METHOD SP URL SP VERSION".
func (c *Conn) parseRequestLine(text string) Code {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return BadRequest
	}
	method, url, version := fields[0], fields[1], fields[2]

	switch strings.ToUpper(method) {
	case "GET":
		c.method = MethodGET
	case "POST":
		c.method = MethodPOST
		c.cgi = true
	default:
		return BadRequest
	}

	if strings.HasPrefix(strings.ToLower(url), "http://") {
		url = url[len("http://"):]
		if idx := strings.IndexByte(url, '/'); idx >= 0 {
			url = url[idx:]
		} else {
			return BadRequest
		}
	} else if strings.HasPrefix(strings.ToLower(url), "https://") {
		url = url[len("https://"):]
		if idx := strings.IndexByte(url, '/'); idx >= 0 {
			url = url[idx:]
		} else {
			return BadRequest
		}
	}
	if url == "" || url[0] != '/' {
		return BadRequest
	}
	if url == "/" {
		url = "/judge.html"
	}
	c.url = url

	if !strings.EqualFold(version, "HTTP/1.1") {
		return BadRequest
	}
	c.version = version

	c.check = checkHeader
	return NoRequest
}

// parseHeaders handles one header line, or the terminating blank line.
func (c *Conn) parseHeaders(text string) Code {
	if text == "" {
		if c.contentLength != 0 {
			c.check = checkBody
			return NoRequest
		}
		return GetRequest
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "connection:"):
		v := strings.TrimSpace(text[len("connection:"):])
		c.linger = strings.EqualFold(v, "keep-alive")
	case strings.HasPrefix(lower, "content-length:"):
		v := strings.TrimSpace(text[len("content-length:"):])
		n, err := strconv.Atoi(v)
		if err == nil && n >= 0 {
			c.contentLength = n
		}
	case strings.HasPrefix(lower, "host:"):
		c.host = strings.TrimSpace(text[len("host:"):])
	default:
		if c.deps.Log != nil {
			c.deps.Log.Infof("unknown header: %s", text)
			c.deps.Log.Flush()
		}
	}
	return NoRequest
}

// parseContent waits for contentLength bytes to accumulate past the body's
// start, then exposes them as userInfo.
func (c *Conn) parseContent(_ string) Code {
	bodyStart := c.startLine
	if c.readIdx >= c.contentLength+bodyStart {
		c.userInfo = string(c.readBuf[bodyStart : bodyStart+c.contentLength])
		return GetRequest
	}
	return NoRequest
}
