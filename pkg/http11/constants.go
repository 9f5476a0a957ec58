// Package http11 implements the HTTP/1.1 request/response machinery:
// the incremental request parser, the response builder with
// memory-mapped file bodies, and the per-connection state that ties
// the two to a socket.
package http11

// ParseState tracks the parser's position inside one request.
type ParseState int

const (
	StateRequestLine ParseState = iota
	StateHeaders
	StateBody
	StateFinish
)

// DefaultPages are the well-known UI pages that are served with an
// implied .html suffix.
var DefaultPages = map[string]struct{}{
	"/index":    {},
	"/register": {},
	"/login":    {},
	"/welcome":  {},
	"/video":    {},
	"/picture":  {},
}

// Actions dispatched on POST, keyed by normalised path.
const (
	ActionRegister = 0
	ActionLogin    = 1
)

// ActionTags maps POST paths to their account action.
var ActionTags = map[string]int{
	"/register.html": ActionRegister,
	"/login.html":    ActionLogin,
}

// statusText covers the codes the server produces. Unknown codes fall
// back to 400.
var statusText = map[int]string{
	200: "OK",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
}

// errorPages maps error codes to their template file under the
// resource root.
var errorPages = map[int]string{
	400: "/400.html",
	403: "/403.html",
	404: "/404.html",
}

// suffixType maps file suffixes to Content-Type values. Anything else
// is served as text/plain.
var suffixType = map[string]string{
	".html":  "text/html",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".txt":   "text/plain",
	".rtf":   "application/rtf",
	".pdf":   "application/pdf",
	".word":  "application/msword",
	".png":   "image/png",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".au":    "audio/basic",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".avi":   "video/x-msvideo",
	".gz":    "application/x-gzip",
	".tar":   "application/x-tar",
	".css":   "text/css",
	".js":    "text/javascript",
}
