package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_Order(t *testing.T) {
	var events []string
	dep := func(name string, requires ...string) *Func {
		return &Func{
			Name:     name,
			Requires: requires,
			OnStart:  func(context.Context) error { events = append(events, "start "+name); return nil },
			OnStop:   func(context.Context) error { events = append(events, "stop "+name); return nil },
		}
	}

	s := New(testLogger(), 1)
	s.Add(dep("server", "database", "redis"))
	s.Add(dep("database"))
	s.Add(dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start database", "start redis", "start server"}, events)
	assert.Equal(t, StatusStarted, s.Status("server"))

	events = nil
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop server", "stop redis", "stop database"}, events)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_Retry(t *testing.T) {
	calls := 0
	s := New(testLogger(), 3)
	s.unit = time.Millisecond
	s.Add(&Func{Name: "database", OnStart: func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUp(t *testing.T) {
	s := New(testLogger(), 2)
	s.unit = time.Millisecond
	s.Add(&Func{Name: "database", OnStart: func(context.Context) error { return errors.New("down") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, StatusFailed, s.Status("database"))
}

func TestStartup_UnknownDependency(t *testing.T) {
	s := New(testLogger(), 1)
	s.Add(&Func{Name: "server", Requires: []string{"database"}})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown startup dependency 'database'")
}
