package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode: "prod" (JSON, info), "test" (warn), "capture" (console on stderr
// so stdout stays free for the capture summary) or anything else for development (debug).
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "capture":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.OutputPaths = []string{"stderr"}
		cfg.DisableStacktrace = true
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, scrub(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, scrub(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, scrub(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, scrub(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, scrub(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(scrub(kv)...)}
}

// Field scrubbing. Credentials are dropped, participant identity is replaced by a salted hash and
// spoken text is reduced to its length. LOG_REDACTION_ENABLED=false turns all of it off.

type fieldClass int

const (
	plainField fieldClass = iota
	secretField
	identityField
	speechField
)

var (
	secretMarkers = []string{"api_key", "apikey", "authorization", "secret", "password", "credential"}
	identityKeys  = []string{"participant_id", "participant_name"}
	speechKeys    = map[string]bool{"raw_text": true, "consolidated_text": true, "sample": true, "transcript": true}
)

func classify(key string) fieldClass {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return plainField
	}
	for _, m := range secretMarkers {
		if strings.Contains(key, m) {
			return secretField
		}
	}
	// "tokens" is a count of recognized words, not a bearer token.
	if strings.Contains(key, "token") && !strings.Contains(key, "tokens") {
		return secretField
	}
	for _, m := range identityKeys {
		if strings.Contains(key, m) {
			return identityField
		}
	}
	if speechKeys[key] {
		return speechField
	}
	return plainField
}

type scrubPolicy struct {
	enabled bool
	salt    string
}

var (
	policyOnce sync.Once
	policy     scrubPolicy
)

func currentPolicy() scrubPolicy {
	policyOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
		default:
			policy.enabled = true
		}
		policy.salt = strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))
	})
	return policy
}

func scrub(kv []interface{}) []interface{} {
	p := currentPolicy()
	if len(kv) == 0 || !p.enabled {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		out[i+1] = p.value(stringify(out[i]), out[i+1])
	}
	return out
}

func (p scrubPolicy) value(key string, val interface{}) interface{} {
	switch classify(key) {
	case secretField:
		return "[REDACTED]"
	case identityField:
		return p.hash(val)
	case speechField:
		return fmt.Sprintf("[TEXT len=%d]", len([]rune(stringify(val))))
	}
	switch v := val.(type) {
	case map[string]interface{}:
		if v == nil {
			return v
		}
		m := make(map[string]interface{}, len(v))
		for k, inner := range v {
			m[k] = p.value(k, inner)
		}
		return m
	case []interface{}:
		if v == nil {
			return v
		}
		s := make([]interface{}, len(v))
		for i, inner := range v {
			s[i] = p.value("", inner)
		}
		return s
	}
	return val
}

func (p scrubPolicy) hash(val interface{}) string {
	raw := stringify(val)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(p.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
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
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
