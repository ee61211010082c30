package studysync_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperengineering/studysync"
)

func TestSchedule_RunsUntilStopped(t *testing.T) {
	var n atomic.Int32
	task := studysync.Schedule(context.Background(), 5*time.Millisecond, func(ctx context.Context) {
		n.Add(1)
	})

	deadline := time.After(2 * time.Second)
	for n.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("task did not run")
		case <-time.After(time.Millisecond):
		}
	}

	task.Stop()
	stopped := n.Load()
	time.Sleep(20 * time.Millisecond)
	if n.Load() != stopped {
		t.Error("task ran after Stop")
	}
	task.Stop()
}

func TestSchedule_StopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := studysync.Schedule(ctx, time.Hour, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop on parent cancellation")
	}
}

func TestScheduledTask_NilStop(t *testing.T) {
	var task *studysync.ScheduledTask
	task.Stop()
}

func TestNewLogger_DebugFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, closer := studysync.NewLogger(true, path)

	logger.Debug("probe", "collection", "tasks")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"probe", "collection=tasks", "component=studysync"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log %q missing %q", data, want)
		}
	}
}

func TestNewLogger_DefaultLevel(t *testing.T) {
	logger, closer := studysync.NewLogger(false, "")
	defer closer.Close()

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled without debug mode")
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warnings should be enabled")
	}
}
