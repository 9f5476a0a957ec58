// Package logger implements the server's logging pipeline: leveled
// records, a date- and line-count-rolling file sink, and an optional
// bounded queue drained by a dedicated writer goroutine so that hot
// paths do not wait on disk while the queue has room.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Level selects which records are emitted. Records below the
// configured level are dropped before formatting.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// MaxLines is the number of records per file before the sink rolls to
// a numbered part file.
const MaxLines = 50000

// levelTags are the fixed-width tags written after the timestamp.
var levelTags = [...]string{
	LevelDebug: "[debug]: ",
	LevelInfo:  "[info] : ",
	LevelWarn:  "[warn] : ",
	LevelError: "[error]: ",
}

const (
	timeLayout = "2006-01-02 15:04:05.000000"
	dateLayout = "2006_01_02"
)

// Logger is a leveled log sink writing to date-stamped files under a
// directory. With a queue capacity above zero records are handed to a
// writer goroutine through a bounded channel; when the channel is full
// the producer degrades to a synchronous write instead of blocking.
type Logger struct {
	level Level
	levMu sync.RWMutex

	dir    string
	suffix string

	mu        sync.Mutex // guards file state below
	file      *os.File
	lineCount int
	day       string // dateLayout stamp of the open file
	maxLines  int    // MaxLines, lowered only by tests

	queue  chan string
	qmu    sync.RWMutex // guards queue close vs producers
	closed bool
	wg     sync.WaitGroup
}

// New opens a logger writing under dir with the given file suffix.
// queueCap > 0 selects the asynchronous sink. The directory is created
// with mode 0777 when missing.
func New(level Level, dir, suffix string, queueCap int) (*Logger, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("logger: create dir %s: %w", dir, err)
	}
	l := &Logger{
		level:    level,
		dir:      dir,
		suffix:   suffix,
		maxLines: MaxLines,
	}
	if err := l.openFile(time.Now()); err != nil {
		return nil, err
	}
	if queueCap > 0 {
		l.queue = make(chan string, queueCap)
		l.wg.Add(1)
		go l.writeLoop()
	}
	return l, nil
}

// SetLevel changes the minimum emitted level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.levMu.Lock()
	l.level = level
	l.levMu.Unlock()
}

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() Level {
	l.levMu.RLock()
	defer l.levMu.RUnlock()
	return l.level
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.write(LevelError, format, args...) }

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if level < l.GetLevel() {
		return
	}

	bb := bytebufferpool.Get()
	bb.WriteString(time.Now().Format(timeLayout))
	bb.WriteByte(' ')
	bb.WriteString(levelTags[level])
	fmt.Fprintf(bb, format, args...)
	bb.WriteByte('\n')
	rec := bb.String()
	bytebufferpool.Put(bb)

	if l.queue == nil {
		l.sink(rec)
		return
	}

	l.qmu.RLock()
	defer l.qmu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- rec:
	default:
		// Queue full: the reactor must not wait on the writer, so
		// degrade to a synchronous write of this one record.
		logQueueFallbacks.Inc()
		l.sink(rec)
	}
}

// Flush forces buffered file data to the OS.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
	}
}

// Close drains the queue, stops the writer, and closes the file. Later
// calls are no-ops; records logged afterwards are dropped.
func (l *Logger) Close() {
	l.qmu.Lock()
	if l.closed {
		l.qmu.Unlock()
		return
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.qmu.Unlock()

	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
	}
}

// writeLoop is the dedicated writer: it pops records until the queue
// is closed and drained.
func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for rec := range l.queue {
		l.sink(rec)
	}
}

// sink appends one record to the current file, rolling it first when
// the date changed or the line count crossed a MaxLines boundary.
func (l *Logger) sink(rec string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	now := time.Now()
	if day := now.Format(dateLayout); day != l.day || (l.lineCount > 0 && l.lineCount%l.maxLines == 0) {
		if err := l.roll(now); err != nil {
			return
		}
	}
	if _, err := l.file.WriteString(rec); err == nil {
		l.lineCount++
	}
}

// roll flushes and closes the current file, then opens the successor.
func (l *Logger) roll(now time.Time) error {
	l.file.Sync()
	l.file.Close()
	l.file = nil
	return l.openFileLocked(now)
}

func (l *Logger) openFile(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openFileLocked(now)
}

func (l *Logger) openFileLocked(now time.Time) error {
	day := now.Format(dateLayout)
	name := day + l.suffix
	if day == l.day && l.lineCount > 0 {
		name = fmt.Sprintf("%s-%d%s", day, l.lineCount/l.maxLines, l.suffix)
	} else {
		l.lineCount = 0
	}
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logger: open %s: %w", name, err)
	}
	l.file = f
	l.day = day
	return nil
}
