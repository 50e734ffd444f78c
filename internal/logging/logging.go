// async/sync leveled logger with day- and line-count-based file rotation.
//
// grounded on original_source/log/log.h + log.cpp: a singleton-style logger
// with a bounded queue feeding one writer goroutine in async mode, or a
// mutex-guarded synchronous write when capacity is 0.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kfcemployee/webserver/internal/queue"
)

// Level mirrors the four levels the original log.h exposes.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger formats leveled lines with a microsecond timestamp, rotating the
// backing file by day or by line count, whichever comes first.
type Logger struct {
	dir          string
	maxLines     int
	mu           sync.Mutex
	file         *os.File
	lineCount    int
	day          int
	queueCap     int
	q            *queue.Queue[string]
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// New initializes a logger rooted at dir, rotating every maxLinesPerFile
// lines or at midnight, whichever comes first. queueCapacity == 0 selects
// synchronous mode (writes happen under the mutex on the caller's
// goroutine); queueCapacity > 0 starts one dedicated writer goroutine
// draining a bounded queue of that capacity.
//
// Each call returns an independent Logger with its own file and, in async
// mode, its own writer goroutine; nothing enforces a single instance.
func New(dir string, maxLinesPerFile, queueCapacity int) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create dir %q: %w", dir, err)
	}

	l := &Logger{
		dir:      dir,
		maxLines: maxLinesPerFile,
		queueCap: queueCapacity,
	}

	if err := l.rotate(time.Now()); err != nil {
		return nil, err
	}

	if queueCapacity > 0 {
		l.q = queue.New[string](queueCapacity)
		l.wg.Add(1)
		go l.writeLoop()
	}
	return l, nil
}

// rotate closes the current file (if any) and opens a fresh one named
// WebServer_<timestamp>.log in append mode. Must be called with mu held
// or during construction before any other goroutine can see l.
func (l *Logger) rotate(now time.Time) error {
	if l.file != nil {
		l.file.Close()
	}
	name := fmt.Sprintf("WebServer_%s.log", now.Format("2006-01-02_15-04-05.000000000"))
	f, err := os.OpenFile(filepath.Join(l.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open rotated file: %w", err)
	}
	l.file = f
	l.lineCount = 0
	l.day = now.YearDay() + now.Year()*1000
	return nil
}

// Write formats and emits one log line at the given level. Fields are
// space-joined the way the original's variadic to_ostringstream folds its
// arguments.
func (l *Logger) Write(level Level, fields ...any) {
	line := formatLine(level, time.Now(), fields...)

	if l.q != nil {
		l.q.Push(line)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLineLocked(line, time.Now())
}

func formatLine(level Level, now time.Time, fields ...any) string {
	ts := now.Format("2006-01-02 15:04:05.000000")
	msg := fmt.Sprint(fields...)
	if len(fields) > 1 {
		msg = fmt.Sprintln(fields...)
		msg = msg[:len(msg)-1] // fmt.Sprintln trailing newline, we add our own below
	}
	return fmt.Sprintf("%s [%s]: %s\n", ts, level, msg)
}

// Debugf, Infof, Warnf and Errorf are convenience wrappers matching the
// LOG_DEBUG/LOG_INFO/LOG_WARN/LOG_ERROR macros of the original.
func (l *Logger) Debugf(format string, args ...any) { l.Write(DEBUG, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Write(INFO, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Write(WARN, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.Write(ERROR, fmt.Sprintf(format, args...)) }

func (l *Logger) writeLoop() {
	defer l.wg.Done()
	for {
		line, ok := l.q.Pop()
		if !ok {
			return
		}
		l.mu.Lock()
		l.writeLineLocked(line, time.Now())
		l.mu.Unlock()
	}
}

// writeLineLocked rotates if needed and appends line. Must hold mu.
// Failure to open a rotated file is fatal for the writer, matching the
// original's behavior of throwing out of write_log.
func (l *Logger) writeLineLocked(line string, now time.Time) {
	l.lineCount++
	today := now.YearDay() + now.Year()*1000
	if today != l.day || l.lineCount >= l.maxLines {
		if err := l.rotate(now); err != nil {
			panic(err)
		}
	}
	l.file.WriteString(line)
}

// Flush flushes the underlying file stream to disk.
func (l *Logger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
	}
}

// Close drains the async writer (if any) and closes the file. Safe to call
// more than once.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		if l.q != nil {
			l.q.Close()
			l.wg.Wait()
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file != nil {
			l.file.Close()
		}
	})
}
