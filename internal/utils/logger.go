package utils

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

// serviceHook sets the service field on entries that do not carry one.
type serviceHook struct {
	service string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}

type LoggerOptions struct {
	Service string
	Level   string // logrus level name; empty means info
	Format  string // "json" or "text"
	Output  io.Writer
}

// ConfigureLogger applies opts to Logger. Calling it again replaces the
// previous configuration, hooks included.
func ConfigureLogger(opts LoggerOptions) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	Logger.SetOutput(opts.Output)

	if strings.EqualFold(opts.Format, "json") {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	levelStr := strings.ToLower(opts.Level)
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	Logger.ReplaceHooks(make(logrus.LevelHooks))
	Logger.AddHook(&serviceHook{service: opts.Service})

	if err != nil {
		Logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to INFO", opts.Level)
	}
}

// InitLogger configures Logger from LOG_LEVEL and LOG_FORMAT.
func InitLogger(service string) {
	ConfigureLogger(LoggerOptions{
		Service: service,
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
	})
}
