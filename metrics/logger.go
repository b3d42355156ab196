package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/juju/lumberjack/v2"
)

type Logger interface {
	Log(info *MetricsInfo)
}

// StdoutLogger writes one JSON record per line to stdout.
type StdoutLogger struct {
	out io.Writer
}

func NewStdoutLogger() *StdoutLogger {
	return &StdoutLogger{out: os.Stdout}
}

func (l *StdoutLogger) Log(info *MetricsInfo) {
	infoStr, err := info.ToJSON()
	if err != nil {
		logger.Errorf("stdout logger: %v", err)
		return
	}
	io.WriteString(l.out, infoStr)
}

const defaultQueueSize = 2000
const defaultLogWriters = 2
const defaultMaxLogFileSize = 1024 // MB
const defaultMaxLogFiles = 10

// FileLogger queues records and writes them from a few goroutines into
// size rotated files log0, log1, ... under LogDir.
type FileLogger struct {
	MetricsQueue   chan *MetricsInfo
	LogDir         string
	MaxLogFileSize int
	MaxLogFiles    int
	Verbose        bool

	writers []*lumberjack.Logger
	done    chan struct{}
}

// NewFileLogger takes the maximum file size in megabytes.
func NewFileLogger(logDir string, maxLogFileSize int, maxLogFiles int, verbose bool) *FileLogger {
	if maxLogFileSize <= 0 {
		maxLogFileSize = defaultMaxLogFileSize
	}
	if maxLogFiles <= 0 {
		maxLogFiles = defaultMaxLogFiles
	}
	l := &FileLogger{
		MetricsQueue:   make(chan *MetricsInfo, defaultQueueSize),
		LogDir:         logDir,
		MaxLogFileSize: maxLogFileSize,
		MaxLogFiles:    maxLogFiles,
		Verbose:        verbose,
		done:           make(chan struct{}, defaultLogWriters),
	}

	for i := 0; i < defaultLogWriters; i++ {
		w := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, fmt.Sprintf("log%d", i)),
			MaxSize:    maxLogFileSize,
			MaxBackups: maxLogFiles,
		}
		l.writers = append(l.writers, w)
		go l.startLogWriter(i, w)
	}
	return l
}

// Log never blocks; records are dropped when the queue is full.
func (l *FileLogger) Log(info *MetricsInfo) {
	select {
	case l.MetricsQueue <- info:
	default:
		if l.Verbose {
			logger.Warningf("metrics queue full, dropping record")
		}
	}
}

func (l *FileLogger) startLogWriter(idx int, w *lumberjack.Logger) {
	defer func() { l.done <- struct{}{} }()
	for info := range l.MetricsQueue {
		infoStr, err := info.ToJSON()
		if err != nil {
			logger.Errorf("file logger %d: %v", idx, err)
			continue
		}
		if _, err := w.Write([]byte(infoStr)); err != nil {
			logger.Errorf("file logger %d: write error: %v", idx, err)
		}
	}
	w.Close()
}

// Close flushes the queue and closes the files.
func (l *FileLogger) Close() {
	close(l.MetricsQueue)
	for range l.writers {
		<-l.done
	}
}
