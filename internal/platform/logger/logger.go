// Package logger wraps a zap SugaredLogger with key/value scrubbing: secret
// looking fields are redacted and user ids are replaced by a salted hash.
package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Mode "prod" selects JSON output at info level, anything else the
	// console encoder.
	Mode string
	// Level overrides the mode's default level when set.
	Level    string
	Redact   bool
	HashSalt string
}

type Logger struct {
	sugar    *zap.SugaredLogger
	scrubber *scrubber
}

func New(opts Options) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level failed: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger failed: %w", err)
	}
	return &Logger{sugar: z.Sugar(), scrubber: newScrubber(opts.Redact, opts.HashSalt)}, nil
}

func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), scrubber: newScrubber(false, "")}
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, l.scrubber.scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, l.scrubber.scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, l.scrubber.scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, l.scrubber.scrub(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.sugar.Fatalw(msg, l.scrubber.scrub(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(l.scrubber.scrub(kv)...), scrubber: l.scrubber}
}

var (
	redactedKeys = []string{"token", "authorization", "password", "secret", "api_key", "apikey", "email"}
	hashedKeys   = []string{"user_id"}
)

const redacted = "[REDACTED]"

type scrubber struct {
	enabled bool
	salt    []byte
}

func newScrubber(enabled bool, salt string) *scrubber {
	return &scrubber{enabled: enabled, salt: []byte(strings.TrimSpace(salt))}
}

// scrub returns kv with sensitive values replaced. A trailing key without a
// value is passed through for zap to report.
func (s *scrubber) scrub(kv []interface{}) []interface{} {
	if !s.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := strings.ToLower(strings.TrimSpace(stringify(out[i])))
		out[i+1] = s.value(key, out[i+1])
	}
	return out
}

func (s *scrubber) value(key string, v interface{}) interface{} {
	if key == "" {
		return v
	}
	if containsAny(key, redactedKeys) {
		return redacted
	}
	if containsAny(key, hashedKeys) {
		return s.hash(stringify(v))
	}
	if str, ok := v.(string); ok && isJWTShaped(str) {
		return redacted
	}
	return v
}

func (s *scrubber) hash(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256(append(append([]byte{}, s.salt...), raw...))
	return "hash:" + hex.EncodeToString(sum[:6])
}

func containsAny(key string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}

func isJWTShaped(s string) bool {
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}
