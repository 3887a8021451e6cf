package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
	LogLevelPanic LogLevel = "panic"
)

type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)

type LoggingConfig struct {
	Level      LogLevel        `yaml:"level" mapstructure:"level"`
	Format     LogFormat       `yaml:"format" mapstructure:"format"`
	Output     string          `yaml:"output" mapstructure:"output"`
	TimeFormat string          `yaml:"time_format" mapstructure:"time_format"`
	Sampling   *SamplingConfig `yaml:"sampling" mapstructure:"sampling"`
}

type SamplingConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Tick       time.Duration `yaml:"tick" mapstructure:"tick"`
	First      int           `yaml:"first" mapstructure:"first"`
	Thereafter int           `yaml:"thereafter" mapstructure:"thereafter"`
}

type Logger struct {
	logger zerolog.Logger
	config LoggingConfig
}

func NewLogger(config LoggingConfig) (*Logger, error) {

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level, err := parseLogLevel(config.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch config.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:

		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, err
		}
		output = file
	}

	var logger zerolog.Logger
	switch config.Format {
	case LogFormatConsole:
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: getTimeFormat(config.TimeFormat),
		}
		logger = zerolog.New(output)
	case LogFormatJSON:
		logger = zerolog.New(output)
	default:
		logger = zerolog.New(output)
	}

	logger = logger.With().
		Timestamp().
		Caller().
		Str("service", "wormgraph").
		Logger()

	if config.Sampling != nil && config.Sampling.Enabled {
		logger = logger.Sample(&zerolog.BasicSampler{
			N: uint32(config.Sampling.Thereafter),
		})
	}

	return &Logger{
		logger: logger,
		config: config,
	}, nil
}

func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.logger.With()

	if traceInfo := ExtractTraceInfo(ctx); traceInfo != nil {
		for key, value := range traceInfo {
			logger = logger.Interface(key, value)
		}
	}

	contextLogger := logger.Logger()
	return &contextLogger
}

func (l *Logger) WithEntity(entityType, iri string) *zerolog.Logger {
	logger := l.logger.With().
		Str("entity_type", entityType).
		Str("iri", iri).
		Logger()
	return &logger
}

func (l *Logger) WithSource(source, externalID string) *zerolog.Logger {
	logger := l.logger.With().
		Str("source", source).
		Str("external_id", externalID).
		Logger()
	return &logger
}

func (l *Logger) WithOperation(operation string) *zerolog.Logger {
	logger := l.logger.With().
		Str("operation", operation).
		Logger()
	return &logger
}

func (l *Logger) WithError(err error) *zerolog.Logger {
	logger := l.logger.With().
		Stack().
		Err(err).
		Logger()
	return &logger
}

func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

func (l *Logger) Fatal(msg string) {
	l.logger.Fatal().Msg(msg)
}

// NewNopLogger discards everything. Used by tests and library callers that do
// not configure logging.
func NewNopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// NewLoggerFrom wraps an existing zerolog logger.
func NewLoggerFrom(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) GetZerologLogger() zerolog.Logger {
	return l.logger
}

func parseLogLevel(level LogLevel) (zerolog.Level, error) {
	switch level {
	case LogLevelTrace:
		return zerolog.TraceLevel, nil
	case LogLevelDebug:
		return zerolog.DebugLevel, nil
	case LogLevelInfo:
		return zerolog.InfoLevel, nil
	case LogLevelWarn:
		return zerolog.WarnLevel, nil
	case LogLevelError:
		return zerolog.ErrorLevel, nil
	case LogLevelFatal:
		return zerolog.FatalLevel, nil
	case LogLevelPanic:
		return zerolog.PanicLevel, nil
	default:
		return zerolog.InfoLevel, nil
	}
}

func getTimeFormat(format string) string {
	if format == "" {
		return time.RFC3339
	}
	return format
}

func SetGlobalLogger(logger *Logger) {
	log.Logger = logger.logger
}

