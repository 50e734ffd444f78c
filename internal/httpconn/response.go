package httpconn

const emptyFileBody = "<html><body></body></html>"

var (
	title200 = "OK"
	title403 = "Forbidden"
	title404 = "Not Found"
	title500 = "Internal Error"

	body403 = "You do not have permission to get file form this server.\n"
	body404 = "The requested file was not found on this server.\n"
	body500 = "There was an unusual problem serving the request file.\n"
)

// processWrite assembles the response into the write buffer and scatter
// vector for the given disposition code. Note per source behavior:
// BadRequest is mapped to 404, not 400 — preserved deliberately.
func (c *Conn) processWrite(code Code) bool {
	switch code {
	case InternalError:
		if !c.addStatusLine(500, title500) || !c.addHeaders(len(body500)) || !c.addBlankLine() || !c.addContent(body500) {
			return false
		}
	case BadRequest:
		if !c.addStatusLine(404, title404) || !c.addHeaders(len(body404)) || !c.addBlankLine() || !c.addContent(body404) {
			return false
		}
	case NoResource:
		if !c.addStatusLine(404, title404) || !c.addHeaders(len(body404)) || !c.addBlankLine() || !c.addContent(body404) {
			return false
		}
	case Forbidden:
		if !c.addStatusLine(403, title403) || !c.addHeaders(len(body403)) || !c.addBlankLine() || !c.addContent(body403) {
			return false
		}
	case FileRequest:
		if !c.addStatusLine(200, title200) {
			return false
		}
		if c.fileSize != 0 {
			if !c.addHeaders(int(c.fileSize)) || !c.addBlankLine() {
				return false
			}
			c.iov[0] = c.writeBuf[:c.writeIdx]
			c.iov[1] = c.fileData
			c.iovCount = 2
			c.bytesLeft = c.writeIdx + int(c.fileSize)
			return true
		}
		if !c.addHeaders(len(emptyFileBody)) || !c.addBlankLine() || !c.addContent(emptyFileBody) {
			return false
		}
	default:
		return false
	}

	c.iov[0] = c.writeBuf[:c.writeIdx]
	c.iov[1] = nil
	c.iovCount = 1
	c.bytesLeft = c.writeIdx
	return true
}
