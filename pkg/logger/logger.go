package logger

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger представляет интерфейс для логирования
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Sync() error
}

// Field представляет поле лога
type Field struct {
	zap.Field
}

// LoggerImpl реализация логгера на основе zap
type LoggerImpl struct {
	zapLogger *zap.Logger
}

// FileOptions параметры ротации файла логов (см. lumberjack.Logger)
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Option дополнительная настройка логгера
type Option func(*options)

type options struct {
	file   *FileOptions
	format string
	sink   zapcore.WriteSyncer
}

// WithFile включает запись логов в файл с ротацией, в дополнение к stdout
func WithFile(f FileOptions) Option {
	return func(o *options) {
		if f.Path != "" {
			o.file = &f
		}
	}
}

// WithFormat принудительно задает формат вывода: "json" или "console".
// По умолчанию формат выбирается по окружению.
func WithFormat(format string) Option {
	return func(o *options) {
		o.format = format
	}
}

// WithOutput заменяет stdout на заданный приемник
func WithOutput(w zapcore.WriteSyncer) Option {
	return func(o *options) {
		o.sink = w
	}
}

// NewLogger создает новый логгер с заданными параметрами
//
// Параметры:
// - environment: окружение (dev, staging, prod)
// - level: уровень логирования
// - serviceName: имя сервиса для контекста
func NewLogger(environment, level, serviceName string, opts ...Option) (Logger, error) {
	o := options{sink: zapcore.AddSync(os.Stdout)}
	for _, opt := range opts {
		opt(&o)
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zap.InfoLevel
	}

	format := o.format
	if format == "" {
		format = "json"
		if environment == "dev" {
			format = "console"
		}
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	} else {
		encoder = zapcore.NewJSONEncoder(productionEncoderConfig())
	}

	atomicLevel := zap.NewAtomicLevelAt(zapLevel)
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, o.sink, atomicLevel),
	}

	// Файл всегда пишется в JSON, чтобы его можно было разбирать
	if o.file != nil {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(productionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   o.file.Path,
				MaxSize:    o.file.MaxSizeMB,
				MaxBackups: o.file.MaxBackups,
				MaxAge:     o.file.MaxAgeDays,
				Compress:   o.file.Compress,
			}),
			atomicLevel,
		))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zap.ErrorLevel))

	// Добавляем поля по умолчанию
	zapLogger = zapLogger.With(
		zap.String("service", serviceName),
		zap.String("environment", environment),
	)

	return &LoggerImpl{zapLogger: zapLogger}, nil
}

// NewNop возвращает логгер, который ничего не пишет
func NewNop() Logger {
	return &LoggerImpl{zapLogger: zap.NewNop()}
}

func productionEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.LevelKey = "level"
	encoderConfig.NameKey = "logger"
	encoderConfig.CallerKey = "caller"
	encoderConfig.MessageKey = "msg"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.LineEnding = zapcore.DefaultLineEnding
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return encoderConfig
}

func toZap(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, field := range fields {
		zapFields[i] = field.Field
	}
	return zapFields
}

// Debug записывает отладочное сообщение
func (l *LoggerImpl) Debug(msg string, fields ...Field) {
	l.zapLogger.Debug(msg, toZap(fields)...)
}

// Info записывает информационное сообщение
func (l *LoggerImpl) Info(msg string, fields ...Field) {
	l.zapLogger.Info(msg, toZap(fields)...)
}

// Warn записывает предупреждение
func (l *LoggerImpl) Warn(msg string, fields ...Field) {
	l.zapLogger.Warn(msg, toZap(fields)...)
}

// Error записывает ошибку
func (l *LoggerImpl) Error(msg string, fields ...Field) {
	l.zapLogger.Error(msg, toZap(fields)...)
}

// With добавляет поля к логгеру и возвращает новый логгер
func (l *LoggerImpl) With(fields ...Field) Logger {
	return &LoggerImpl{zapLogger: l.zapLogger.With(toZap(fields)...)}
}

// Sync сбрасывает буферы логгера
func (l *LoggerImpl) Sync() error {
	return l.zapLogger.Sync()
}

// StdLogger возвращает *log.Logger стандартной библиотеки, который пишет в l на уровне Warn.
// Нужен для http.Server.ErrorLog.
func StdLogger(l Logger) *stdlog.Logger {
	impl, ok := l.(*LoggerImpl)
	if !ok {
		return stdlog.New(io.Discard, "", 0)
	}
	std, err := zap.NewStdLogAt(impl.zapLogger.WithOptions(zap.AddCallerSkip(-1)), zap.WarnLevel)
	if err != nil {
		return stdlog.New(io.Discard, "", 0)
	}
	return std
}

type requestIDKey struct{}

// WithRequestID сохраняет идентификатор запроса в контексте
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID извлекает идентификатор запроса из контекста
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// CtxField возвращает поле с request_id из контекста
func CtxField(ctx context.Context) Field {
	if id := RequestID(ctx); id != "" {
		return String("request_id", id)
	}
	return String("request_id", "unknown")
}

// String создает поле со строковым значением
func String(key, val string) Field {
	return Field{zap.String(key, val)}
}

// Int создает поле с целочисленным значением
func Int(key string, val int) Field {
	return Field{zap.Int(key, val)}
}

// Int64 создает поле с целочисленным значением типа int64
func Int64(key string, val int64) Field {
	return Field{zap.Int64(key, val)}
}

// Float64 создает поле с значением типа float64
func Float64(key string, val float64) Field {
	return Field{zap.Float64(key, val)}
}

// Bool создает поле с булевым значением
func Bool(key string, val bool) Field {
	return Field{zap.Bool(key, val)}
}

// Duration создает поле с длительностью
func Duration(key string, val time.Duration) Field {
	return Field{zap.Duration(key, val)}
}

// Error создает поле с ошибкой
func Error(err error) Field {
	if err == nil {
		return Field{zap.String("error", "nil")}
	}
	return Field{zap.String("error", err.Error())}
}

// Any создает поле с любым значением
func Any(key string, val interface{}) Field {
	return Field{zap.Any(key, val)}
}
