package http11

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"github.com/MgJun-ux/MyWebServer/pkg/buffer"
	"github.com/MgJun-ux/MyWebServer/pkg/logger"
)

// Response resolves a request path against the resource root and
// renders the status line, headers, and body. Successful file bodies
// are memory-mapped and handed to the connection's write vector; the
// mapping lives until UnmapFile.
type Response struct {
	code      int
	keepAlive bool

	srcDir string
	path   string

	file     []byte // mmap of the resolved file, nil for error bodies
	fileSize int64
}

// Init points the response at a resolved path. code -1 means "200
// unless resolution fails". Any previous file mapping is released.
func (r *Response) Init(srcDir, path string, keepAlive bool, code int) {
	r.UnmapFile()
	r.srcDir = srcDir
	r.path = path
	r.keepAlive = keepAlive
	r.code = code
	r.fileSize = 0
}

// Code returns the status code decided by MakeResponse.
func (r *Response) Code() int { return r.code }

// File returns the mapped body, nil when the response has none.
func (r *Response) File() []byte { return r.file }

// FileLen returns the size of the mapped body.
func (r *Response) FileLen() int64 { return r.fileSize }

// UnmapFile releases the body mapping. Safe to call repeatedly.
func (r *Response) UnmapFile() {
	if r.file != nil {
		unix.Munmap(r.file)
		r.file = nil
	}
	r.fileSize = 0
}

// MakeResponse stats the target, settles the status code, and writes
// the response head into buf. The body either comes from the file
// mapping (success) or is appended inline (error pages). A caller that
// already settled on an error code (parse failures) skips file
// resolution entirely.
func (r *Response) MakeResponse(buf *buffer.Buffer) {
	if r.code < 400 {
		st, err := os.Stat(r.srcDir + r.path)
		switch {
		case err != nil || st.IsDir():
			r.code = 404
		case st.Mode().Perm()&0400 == 0:
			r.code = 403
		case r.code < 0:
			r.code = 200
		}
	}
	r.errorPage()
	r.addStatusLine(buf)
	r.addHeader(buf)
	r.addContent(buf)
}

// errorPage swaps the path to the template for the settled error code,
// when one is configured.
func (r *Response) errorPage() {
	if path, ok := errorPages[r.code]; ok {
		r.path = path
	}
}

func (r *Response) addStatusLine(buf *buffer.Buffer) {
	status, ok := statusText[r.code]
	if !ok {
		r.code = 400
		status = statusText[400]
	}
	buf.AppendString("HTTP/1.1 " + strconv.Itoa(r.code) + " " + status + "\r\n")
}

func (r *Response) addHeader(buf *buffer.Buffer) {
	buf.AppendString("Connection: ")
	if r.keepAlive {
		buf.AppendString("keep-alive\r\n")
		buf.AppendString("keep-alive: max=6, timeout=120\r\n")
	} else {
		buf.AppendString("close\r\n")
	}
	buf.AppendString("Content-Type: " + r.fileType() + "\r\n")
}

// addContent maps the resolved file into memory. The mapping is not
// copied into buf; the connection sends it from the second I/O vector.
func (r *Response) addContent(buf *buffer.Buffer) {
	f, err := os.Open(r.srcDir + r.path)
	if err != nil {
		r.errorContent(buf, "File NotFound!")
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		r.errorContent(buf, "File NotFound!")
		return
	}
	size := st.Size()
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			logger.Errorf("mmap %s: %v", r.path, err)
			r.errorContent(buf, "File NotFound!")
			return
		}
		r.file = data
		r.fileSize = size
	}
	buf.AppendString("Content-length: " + strconv.FormatInt(size, 10) + "\r\n\r\n")
}

// errorContent appends an inline HTML body for codes whose template
// file is missing.
func (r *Response) errorContent(buf *buffer.Buffer, message string) {
	status, ok := statusText[r.code]
	if !ok {
		status = "Bad Request"
	}
	bb := bytebufferpool.Get()
	fmt.Fprintf(bb, "<html><title>Error</title><body bgcolor=\"ffffff\">%d : %s\n<p>%s</p><hr><em>MyWebServer</em></body></html>", r.code, status, message)
	buf.AppendString("Content-length: " + strconv.Itoa(bb.Len()) + "\r\n\r\n")
	buf.Append(bb.Bytes())
	bytebufferpool.Put(bb)
}

func (r *Response) fileType() string {
	if i := strings.LastIndexByte(r.path, '.'); i >= 0 {
		if t, ok := suffixType[r.path[i:]]; ok {
			return t
		}
	}
	return "text/plain"
}
