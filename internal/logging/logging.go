package logging

import (
	"io"
	"os"
	"strings"

	"flowstate/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure sets up logrus with rotation.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	logger := logrus.New()
	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level)); err == nil {
		logger.SetLevel(lvl)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   false,
	}
	if cfg.Logging.Stdout {
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

// ConfigureConsole is Configure for one-shot CLI commands: warnings and above
// also go to stderr so problems are visible without tailing the log file.
func ConfigureConsole(cfg *config.Config) (*logrus.Logger, error) {
	logger, err := Configure(cfg)
	if err != nil {
		return nil, err
	}
	logger.AddHook(&stderrHook{out: os.Stderr, formatter: &logrus.TextFormatter{DisableTimestamp: true}})
	return logger, nil
}

// ForSession tags entries with the recording session identity.
func ForSession(logger logrus.FieldLogger, id string, generation uint64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"session":    id,
		"generation": generation,
	})
}

type stderrHook struct {
	out       io.Writer
	formatter logrus.Formatter
}

func (h *stderrHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *stderrHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.out.Write(b)
	return err
}
