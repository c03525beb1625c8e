package audit

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
)

type captureSink struct {
	actions []string
	errs    []error
}

func (c *captureSink) Log(ctx context.Context, action, details string, actor Actor) {
	c.actions = append(c.actions, action)
}

func (c *captureSink) Error(ctx context.Context, err error, context string, actor Actor) {
	c.errs = append(c.errs, err)
}

func TestMultiFansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := Multi{a, b}
	ctx := context.Background()

	m.Log(ctx, "scheduler_started", "", System)
	m.Error(ctx, errors.New("boom"), "materialize: read rules", System)

	for i, sink := range []*captureSink{a, b} {
		if len(sink.actions) != 1 || sink.actions[0] != "scheduler_started" {
			t.Errorf("sink %d actions = %v", i, sink.actions)
		}
		if len(sink.errs) != 1 {
			t.Errorf("sink %d errs = %v", i, sink.errs)
		}
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	original := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(original)

	s := NewLogSink()
	ctx := context.Background()
	s.Log(ctx, "retention_pruned", "events=3", System)
	s.Error(ctx, errors.New("boom"), "cleanup: write documents", System)

	out := buf.String()
	if !strings.Contains(out, "action=retention_pruned") || !strings.Contains(out, `details="events=3"`) {
		t.Errorf("log output missing entry fields: %s", out)
	}
	if !strings.Contains(out, "err=boom") {
		t.Errorf("log output missing error entry: %s", out)
	}
}
