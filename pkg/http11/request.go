package http11

import (
	"bytes"
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/MgJun-ux/MyWebServer/pkg/buffer"
	"github.com/MgJun-ux/MyWebServer/pkg/logger"
)

// UserVerifier authenticates (isLogin) or registers a user. Wired to
// the SQL pool in production, to a stub in tests. A returned error
// means the backend failed, not that the credentials were wrong.
type UserVerifier func(name, password string, isLogin bool) (bool, error)

// ErrMalformed reports a request that violated the grammar and must be
// answered with 400.
var ErrMalformed = errors.New("http11: malformed request")

// ErrVerify reports that the account backend failed while handling a
// login or register action; the request is answered with 400.
var ErrVerify = errors.New("http11: user verify failed")

var (
	requestLineRE = regexp.MustCompile(`^([^ ]*) ([^ ]*) HTTP/([^ ]*)$`)
	headerRE      = regexp.MustCompile(`^([^:]*): ?(.*)$`)
)

var crlf = []byte("\r\n")

// Request is the incremental parser plus the parsed result. A Conn
// owns one Request and resets it before each exchange.
type Request struct {
	state ParseState

	Method  string
	Path    string
	Version string
	Body    string

	Header map[string]string
	Post   map[string]string

	// Verify handles login/register dispatch for POST requests. When
	// nil the dispatch fails closed (error page).
	Verify UserVerifier
}

// Reset returns the parser to the request-line state, dropping any
// previously parsed request.
func (r *Request) Reset() {
	r.state = StateRequestLine
	r.Method, r.Path, r.Version, r.Body = "", "", "", ""
	r.Header = make(map[string]string)
	r.Post = make(map[string]string)
}

// State exposes the parse state for tests and diagnostics.
func (r *Request) State() ParseState { return r.state }

// Parse consumes CRLF-delimited lines from buf. It returns done=true
// once a full request has been read, done=false with a nil error when
// the buffer ran dry mid-request (the caller keeps the buffer and
// retries on the next readiness cycle), and ErrMalformed when a line
// violates the grammar.
func (r *Request) Parse(buf *buffer.Buffer) (bool, error) {
	for buf.ReadableBytes() > 0 && r.state != StateFinish {
		if r.state == StateBody {
			if err := r.parseBody(buf.RetrieveAllToString()); err != nil {
				return false, err
			}
			continue
		}
		peek := buf.Peek()
		idx := bytes.Index(peek, crlf)
		if idx < 0 {
			return false, nil
		}
		line := string(peek[:idx])
		switch r.state {
		case StateRequestLine:
			if !r.parseRequestLine(line) {
				return false, ErrMalformed
			}
			r.normalisePath()
		case StateHeaders:
			if line == "" {
				if r.Method == "POST" {
					r.state = StateBody
				} else {
					r.state = StateFinish
				}
			} else if !r.parseHeader(line) {
				return false, ErrMalformed
			}
		}
		buf.Retrieve(idx + 2)
	}
	if r.state != StateFinish {
		return false, nil
	}
	logger.Debugf("request %s %s HTTP/%s", r.Method, r.Path, r.Version)
	return true, nil
}

// IsKeepAlive reports whether the client asked to reuse the
// connection. Only HTTP/1.1 connections are kept alive.
func (r *Request) IsKeepAlive() bool {
	return r.Header["Connection"] == "keep-alive" && r.Version == "1.1"
}

// GetPost returns a decoded form value.
func (r *Request) GetPost(key string) string { return r.Post[key] }

func (r *Request) parseRequestLine(line string) bool {
	m := requestLineRE.FindStringSubmatch(line)
	if m == nil {
		logger.Errorf("bad request line: %q", line)
		return false
	}
	if m[3] != "1.1" && m[3] != "1.0" {
		logger.Errorf("unsupported HTTP version: %q", m[3])
		return false
	}
	r.Method, r.Path, r.Version = m[1], m[2], m[3]
	r.state = StateHeaders
	return true
}

func (r *Request) parseHeader(line string) bool {
	m := headerRE.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	r.Header[m[1]] = m[2]
	return true
}

func (r *Request) parseBody(body string) error {
	r.Body = body
	if err := r.parsePost(); err != nil {
		return err
	}
	r.state = StateFinish
	return nil
}

func (r *Request) normalisePath() {
	if r.Path == "/" {
		r.Path = "/index.html"
		return
	}
	if _, ok := DefaultPages[r.Path]; ok {
		r.Path += ".html"
	}
}

// parsePost decodes an urlencoded form and, for the login and register
// pages, runs the account action. The resolved path becomes the
// welcome page on success and the error page on a credential mismatch;
// a backend failure fails the whole request.
func (r *Request) parsePost() error {
	if r.Method != "POST" || r.Header["Content-Type"] != "application/x-www-form-urlencoded" {
		return nil
	}
	r.parseFromURLEncoded()
	tag, ok := ActionTags[r.Path]
	if !ok {
		return nil
	}
	isLogin := tag == ActionLogin
	verified := false
	if r.Verify != nil {
		ok, err := r.Verify(r.Post["username"], r.Post["password"], isLogin)
		if err != nil {
			logger.Errorf("verify %s: %v", r.Post["username"], err)
			return ErrVerify
		}
		verified = ok
	}
	if verified {
		r.Path = "/welcome.html"
	} else {
		r.Path = "/error.html"
	}
	return nil
}

// parseFromURLEncoded splits key=value&... pairs, decoding %HH escapes
// and '+' as space. Undecodable tokens are kept raw.
func (r *Request) parseFromURLEncoded() {
	if r.Body == "" {
		return
	}
	for _, pair := range strings.Split(r.Body, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := unescape(kv[0])
		r.Post[key] = unescape(kv[1])
	}
}

func unescape(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return out
}
