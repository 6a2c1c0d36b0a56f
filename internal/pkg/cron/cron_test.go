package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	assert "github.com/stretchr/testify/require"
)

func TestRegisterAndList(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:        "sweeper",
		Description: "expires stale rows",
		Interval:    time.Hour,
		Fn:          func(ctx context.Context) error { return nil },
	})

	items := s.List()
	assert.Len(t, items, 1)
	assert.Equal(t, "sweeper", items[0].Name)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.NotNil(t, items[0].NextDate)
	assert.Nil(t, items[0].LastRunAt)
}

func TestExecuteRecordsOutcome(t *testing.T) {
	s := New()
	s.Register(Job{Name: "ok", Interval: time.Hour, Fn: func(ctx context.Context) error { return nil }})
	s.Register(Job{Name: "bad", Interval: time.Hour, Fn: func(ctx context.Context) error { return errors.New("boom") }})

	s.execute(context.Background(), s.jobs["ok"])
	s.execute(context.Background(), s.jobs["bad"])

	res, err := s.GetTask("ok")
	assert.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Empty(t, res.Message)

	res, err = s.GetTask("bad")
	assert.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "boom", res.Message)

	items := s.List()
	for _, item := range items {
		assert.NotNil(t, item.LastRunAt, item.Name)
	}
}

func TestRunUnknownJob(t *testing.T) {
	s := New()
	assert.Error(t, s.Run(context.Background(), "ghost"))
	_, err := s.GetTask("ghost")
	assert.Error(t, err)
}

func TestRunTriggersJob(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Register(Job{Name: "manual", Interval: time.Hour, Fn: func(ctx context.Context) error {
		close(done)
		return nil
	}})

	assert.NoError(t, s.Run(context.Background(), "manual"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}
