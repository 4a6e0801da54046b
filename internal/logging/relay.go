package logging

import (
	"context"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// Alert is a log entry selected for external notification.
type Alert struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Relay   string         `json:"relay,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Alerter delivers alerts to an external channel.
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// relayCore is a zapcore.Core that only writes relay-tagged or error entries,
// and writes them to an Alerter instead of an encoder.
type relayCore struct {
	alerter Alerter
	limiter *rate.Limiter
	timeout time.Duration
	fields  []zapcore.Field
}

// NewRelayCore returns a core that forwards at most perMinute alerts a minute.
// Entries over the limit are dropped.
func NewRelayCore(alerter Alerter, perMinute int, timeout time.Duration) zapcore.Core {
	if perMinute <= 0 {
		perMinute = 20
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &relayCore{
		alerter: alerter,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		timeout: timeout,
	}
}

func (c *relayCore) Enabled(lvl zapcore.Level) bool { return lvl >= zapcore.InfoLevel }

func (c *relayCore) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

func (c *relayCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *relayCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	relay, _ := enc.Fields[RelayKey].(string)
	if relay == "" && ent.Level < zapcore.ErrorLevel {
		return nil
	}
	if !c.limiter.Allow() {
		return nil
	}
	delete(enc.Fields, RelayKey)

	a := Alert{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Message: ent.Message,
		Relay:   relay,
		Fields:  enc.Fields,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		_ = c.alerter.Alert(ctx, a)
	}()
	return nil
}

func (c *relayCore) Sync() error { return nil }
