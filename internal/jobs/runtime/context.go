package runtime

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	ModeQueue  = "queue"
	ModeInline = "inline"
)

// JobInfo identifies one attempt of one job. Attempt is 1-based.
type JobInfo struct {
	ID         string
	Queue      string
	Type       string
	Attempt    int
	MaxRetries int
	Mode       string
}

type ProgressFunc func(percent float64)

/*
Context is the handle a handler gets for a single attempt.
Handlers read their input only through the payload helpers, which narrow the
opaque document to the scalar they expect, and report progress only through
Progress. Ledger and event side effects stay with the Runner.
*/
type Context struct {
	Ctx      context.Context
	Job      JobInfo
	payload  map[string]any
	progress ProgressFunc
}

func NewContext(ctx context.Context, job JobInfo, payload map[string]any, progress ProgressFunc) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Context{
		Ctx:      ctx,
		Job:      job,
		payload:  payload,
		progress: progress,
	}
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString returns the first key holding a non-blank string or number.
func (c *Context) PayloadString(keys ...string) (string, bool) {
	p := c.Payload()
	for _, k := range keys {
		v, ok := p[k]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				continue
			}
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case int, int64, int32:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

func (c *Context) Progress(percent float64) {
	if c == nil || c.progress == nil {
		return
	}
	c.progress(percent)
}
