package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

const RunIDKey = "run_id"

type Fields = logrus.Fields

type runIDKey struct{}

// Options controls where and how verbosely the process logs
type Options struct {
	Level string
	Dir   string
}

// NewLogger builds the process logger once; later calls return it unchanged
func NewLogger(opts Options) *logrus.Logger {
	once.Do(func() {
		logger = build(opts)
	})
	return logger
}

func build(opts Options) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	l.SetFormatter(&formatter.Formatter{
		NoColors:        false,
		TimestampFormat: "02 Jan 06 - 15:04",
		HideKeys:        false,
		CallerFirst:     true,
		CustomCallerFormatter: func(f *runtime.Frame) string {
			s := strings.Split(f.Function, ".")
			funcName := s[len(s)-1]
			return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
		},
	})

	writers := []io.Writer{os.Stderr}

	if os.Getenv("APP_ENV") != "test" {
		dir := opts.Dir
		if dir == "" {
			dir = "./storage/logs"
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(dir, fmt.Sprintf("gazeprep-%s.log", time.Now().Format("2006-01-02"))),
			LocalTime:  true,
			Compress:   true,
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 3,
		})
	}

	l.SetOutput(io.MultiWriter(writers...))
	l.SetReportCaller(true)
	return l
}

// get returns the process logger, building a default one on first use
func get() *logrus.Logger {
	return NewLogger(Options{Level: os.Getenv("LOG_LEVEL")})
}

func Debug(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Debug(msg)
}

func Info(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Info(msg)
}

func Warn(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Warn(msg)
}

func Error(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Error(msg)
}

// ErrorWithTraceID logs msg with a trace id and returns it. An existing
// run_id field is reused as the trace id.
func ErrorWithTraceID(fields Fields, msg string) string {
	if fields == nil {
		fields = Fields{}
	}

	var traceID string
	if id, ok := fields[RunIDKey].(string); ok && id != "" {
		traceID = id
	} else {
		id, err := uuid.NewRandom()
		if err != nil {
			Error(Fields{
				"error": err.Error(),
			}, "[log.ErrorWithTraceID] failed to generate trace ID")
			traceID = "unknown"
		} else {
			traceID = id.String()
		}
	}

	fields["trace_id"] = traceID
	get().WithFields(fields).Error(msg)

	return traceID
}

func Fatal(fields Fields, msg string) {
	if fields == nil {
		fields = Fields{}
	}
	get().WithFields(fields).Fatal(msg)
}

// NewRunID tags ctx with a fresh batch run id
func NewRunID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, runIDKey{}, id), id
}

// RunID returns the run id stored in ctx, or "unknown"
func RunID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(runIDKey{}).(string); ok && id != "" {
			return id
		}
	}
	return "unknown"
}

// WithRunID returns an entry tagged with the run id from ctx
func WithRunID(ctx context.Context) *logrus.Entry {
	return get().WithField(RunIDKey, RunID(ctx))
}
