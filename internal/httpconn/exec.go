package httpconn

import (
	"context"
	"path"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// pageByDiscriminator mirrors exec_request's switch on url[1]: a
// single-digit code selects a canned page independent of the rest of the
// URL.
var pageByDiscriminator = map[byte]string{
	'0': "/register.html",
	'1': "/log.html",
	'5': "/picture.html",
	'6': "/video.html",
	'7': "/fans.html",
}

// execRequest resolves the parsed request to a filesystem path (running
// register/login first when the URL calls for it) and memory-maps the
// result.
func (c *Conn) execRequest() Code {
	if len(c.url) < 2 {
		return BadRequest
	}
	discriminator := c.url[1]

	if c.cgi && (discriminator == '2' || discriminator == '3') {
		name, password, ok := parseCredentials(c.userInfo)
		if !ok {
			return BadRequest
		}

		switch discriminator {
		case '3':
			registered, err := c.deps.Users.Register(context.Background(), name, password)
			if err != nil && c.deps.Log != nil {
				c.deps.Log.Errorf("register %q: %v", name, err)
			}
			if registered {
				c.url = "/log.html"
			} else {
				c.url = "/registerError.html"
			}
		case '2':
			if c.deps.Users.Login(name, password) {
				c.url = "/welcome.html"
			} else {
				c.url = "/logError.html"
			}
		}
	}

	servedURL := c.url
	if page, ok := pageByDiscriminator[discriminator]; ok {
		servedURL = page
	}

	realFile := filepath.Join(c.deps.DocRoot, filepath.FromSlash(path.Clean("/"+servedURL)))
	c.realFile = realFile

	exists, worldReadable, isDir, size := statFileMode(realFile)
	if !exists {
		return NoResource
	}
	if !worldReadable {
		return Forbidden
	}
	if isDir {
		return BadRequest
	}

	fd, err := unix.Open(realFile, unix.O_RDONLY, 0)
	if err != nil {
		return NoResource
	}
	defer unix.Close(fd)

	c.fileSize = size
	if size > 0 {
		data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			return InternalError
		}
		c.fileData = data
	}
	return FileRequest
}
