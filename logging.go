package stratum

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var logger = newSimpleLogger()

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

var levelNames = []string{
	"DEBUG",
	"INFO",
	"WARN",
	"ERROR",
}

type logLevel int

type logEvent struct {
	level logLevel
	msg   string
	attrs []any
}

type simpleLogger struct {
	level    atomic.Int32
	queue    chan logEvent
	done     chan struct{}
	writerMu sync.RWMutex
	out      io.Writer
	debugOut io.Writer
	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue:    make(chan logEvent, 1024),
		done:     make(chan struct{}),
		out:      os.Stderr,
		debugOut: io.Discard,
	}
	l.level.Store(int32(logLevelWarn))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *simpleLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.writeEntry(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.writeEntry(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) log(level logLevel, msg string, attrs ...any) {
	if level < logLevel(l.level.Load()) {
		return
	}
	if l.closing.Load() {
		return
	}
	select {
	case l.queue <- logEvent{level: level, msg: msg, attrs: append([]any(nil), attrs...)}:
	case <-l.done:
	}
}

func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }
func (l *simpleLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *simpleLogger) configureWriters(out, debug io.Writer) {
	if out == nil {
		out = io.Discard
	}
	if debug == nil {
		debug = io.Discard
	}
	l.writerMu.Lock()
	l.out = out
	l.debugOut = debug
	l.writerMu.Unlock()
}

func (l *simpleLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.writerMu.Lock()
		closeWriter(l.out)
		closeWriter(l.debugOut)
		l.out = io.Discard
		l.debugOut = io.Discard
		l.writerMu.Unlock()
	})
}

func closeWriter(w io.Writer) {
	if closer, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		_ = closer.Close()
	}
}

func (l *simpleLogger) writeEntry(evt logEvent) {
	attrText := formatAttrs(evt.attrs)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	levelName := "UNKNOWN"
	if int(evt.level) >= 0 && int(evt.level) < len(levelNames) {
		levelName = levelNames[evt.level]
	}
	var entry strings.Builder
	entry.WriteString(timestamp)
	entry.WriteString(" [")
	entry.WriteString(levelName)
	entry.WriteString("] ")
	entry.WriteString(evt.msg)
	if attrText != "" {
		entry.WriteString(" ")
		entry.WriteString(attrText)
	}
	entry.WriteByte('\n')
	line := entry.String()

	l.writerMu.RLock()
	out := l.out
	debugOut := l.debugOut
	l.writerMu.RUnlock()

	if evt.level == logLevelDebug {
		if debugOut != nil {
			_, _ = debugOut.Write([]byte(line))
		}
		return
	}
	if out != nil {
		_, _ = out.Write([]byte(line))
	}
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		key := fmt.Sprint(attrs[i])
		if i+1 < len(attrs) {
			value := fmt.Sprint(attrs[i+1])
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(value)
			i++
		} else {
			b.WriteString(key)
		}
	}
	return b.String()
}

// SetLogLevel selects the minimum level written by the package logger.
// "debug", "info", "warn" and "error" are accepted; anything else leaves the
// level unchanged.
func SetLogLevel(name string) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		logger.setLevel(logLevelDebug)
	case "info":
		logger.setLevel(logLevelInfo)
	case "warn":
		logger.setLevel(logLevelWarn)
	case "error":
		logger.setLevel(logLevelError)
	}
}

// ConfigureFileLogging directs non-debug output to a daily rolling file and
// debug output to a second one. Empty paths discard that stream. Pass both
// empty to restore stderr-only logging.
func ConfigureFileLogging(path, debugPath string) {
	if path == "" && debugPath == "" {
		logger.configureWriters(os.Stderr, io.Discard)
		return
	}
	logger.configureWriters(newDailyRollingFileWriter(path), newDailyRollingFileWriter(debugPath))
}

// StopLogging drains the queue and closes any file writers. Intended for
// process shutdown paths.
func StopLogging() {
	logger.Stop()
}

func newDailyRollingFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return &dailyRollingFileWriter{
		dir:  dir,
		name: name,
		ext:  ext,
	}
}

type dailyRollingFileWriter struct {
	dir         string
	name        string
	ext         string
	mu          sync.Mutex
	f           *os.File
	currentDate string
}

func (w *dailyRollingFileWriter) ensureFile(now time.Time) error {
	if w.name == "" || w.dir == "" {
		return fmt.Errorf("invalid log path")
	}
	date := now.UTC().Format("2006-01-02")
	if w.f != nil && w.currentDate == date {
		return nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	filename := fmt.Sprintf("%s-%s%s", w.name, date, w.ext)
	f, err := os.OpenFile(filepath.Join(w.dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.currentDate = date
	return nil
}

func (w *dailyRollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(time.Now()); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *dailyRollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
