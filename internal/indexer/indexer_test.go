package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrnkim/adland-tv/internal/cloud"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pollStep struct {
	task *cloud.Task
	err  error
}

type fakeTasks struct {
	mu        sync.Mutex
	createErr error
	created   []cloud.TaskRequest
	steps     []pollStep
	polls     int
}

func (f *fakeTasks) Create(_ context.Context, req cloud.TaskRequest) (*cloud.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &cloud.Task{ID: "task-1", Status: cloud.TaskPending}, nil
}

func (f *fakeTasks) Get(_ context.Context, taskID string) (*cloud.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	f.polls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].task, f.steps[i].err
}

func status(s cloud.TaskStatus) pollStep {
	return pollStep{task: &cloud.Task{ID: "task-1", Status: s}}
}

func fastConfig() Config {
	return Config{PollInterval: time.Millisecond, Timeout: time.Minute, EnableVideoStream: true, Logger: testLogger()}
}

func TestIndexAndWait_Ready(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{
		status(cloud.TaskQueued),
		{err: &cloud.APIError{StatusCode: 502}},
		status(cloud.TaskIndexing),
		{task: &cloud.Task{ID: "task-1", Status: cloud.TaskReady, VideoID: "vid-9"}},
	}}
	o := New(tasks, fastConfig())

	id, err := o.IndexAndWait(context.Background(), Source{FilePath: "/tmp/a.mp4", Filename: "a.mp4", URL: "ignored"}, map[string]string{"title": "A"})
	if err != nil {
		t.Fatalf("IndexAndWait() error = %v", err)
	}
	if id != "vid-9" || tasks.polls != 4 {
		t.Errorf("id = %q, polls = %d", id, tasks.polls)
	}
	req := tasks.created[0]
	if req.FilePath != "/tmp/a.mp4" || req.VideoURL != "" || !req.EnableVideoStream || req.UserMetadata["title"] != "A" {
		t.Errorf("request = %+v", req)
	}
}

func TestIndexAndWait_ByURL(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{{task: &cloud.Task{Status: cloud.TaskReady, VideoID: "v"}}}}
	if _, err := New(tasks, fastConfig()).IndexAndWait(context.Background(), Source{URL: "https://x/a.mp4"}, nil); err != nil {
		t.Fatal(err)
	}
	if tasks.created[0].VideoURL != "https://x/a.mp4" {
		t.Errorf("request = %+v", tasks.created[0])
	}
}

func TestIndexAndWait_Failed(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{status(cloud.TaskIndexing), status(cloud.TaskFailed)}}
	_, err := New(tasks, fastConfig()).IndexAndWait(context.Background(), Source{URL: "u"}, nil)

	var idxErr *IndexingError
	if !errors.As(err, &idxErr) {
		t.Fatalf("err = %v, want *IndexingError", err)
	}
	if idxErr.Status != cloud.TaskFailed || idxErr.TaskID != "task-1" {
		t.Errorf("idxErr = %+v", idxErr)
	}
	if !strings.Contains(err.Error(), "failed") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIndexAndWait_SubmitError(t *testing.T) {
	tasks := &fakeTasks{createErr: &cloud.APIError{Op: "create task", StatusCode: 400, Body: "bad file"}}
	_, err := New(tasks, fastConfig()).IndexAndWait(context.Background(), Source{URL: "u"}, nil)

	var idxErr *IndexingError
	if !errors.As(err, &idxErr) || idxErr.TaskID != "" {
		t.Fatalf("err = %v, want submit *IndexingError", err)
	}
	var apiErr *cloud.APIError
	if !errors.As(err, &apiErr) {
		t.Error("submit error should wrap the API error")
	}
}

func TestIndexAndWait_PermanentPollError(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{{err: &cloud.APIError{StatusCode: 404}}}}
	_, err := New(tasks, fastConfig()).IndexAndWait(context.Background(), Source{URL: "u"}, nil)

	var idxErr *IndexingError
	if !errors.As(err, &idxErr) || tasks.polls != 1 {
		t.Fatalf("err = %v after %d polls, want *IndexingError after 1", err, tasks.polls)
	}
}

func TestIndexAndWait_ReadyWithoutVideoID(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{status(cloud.TaskReady)}}
	_, err := New(tasks, fastConfig()).IndexAndWait(context.Background(), Source{URL: "u"}, nil)
	var idxErr *IndexingError
	if !errors.As(err, &idxErr) {
		t.Fatalf("err = %v, want *IndexingError", err)
	}
}

func TestIndexAndWait_MaxAttempts(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{status(cloud.TaskIndexing)}}
	cfg := fastConfig()
	cfg.MaxAttempts = 3
	_, err := New(tasks, cfg).IndexAndWait(context.Background(), Source{URL: "u"}, nil)

	var timeout *TimedOutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want *TimedOutError", err)
	}
	if timeout.Attempts != 3 || timeout.LastStatus != cloud.TaskIndexing || tasks.polls != 3 {
		t.Errorf("timeout = %+v, polls = %d", timeout, tasks.polls)
	}
}

func TestIndexAndWait_Deadline(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{{err: &cloud.APIError{StatusCode: 503}}}}
	cfg := fastConfig()
	o := New(tasks, cfg)

	// Advance a fake clock by ten minutes per reading.
	var mu sync.Mutex
	now := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	o.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(10 * time.Minute)
		return now
	}

	_, err := o.IndexAndWait(context.Background(), Source{URL: "u"}, nil)
	var timeout *TimedOutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want *TimedOutError", err)
	}
	if timeout.LastStatus != cloud.TaskPending || timeout.Elapsed < cfg.Timeout {
		t.Errorf("timeout = %+v", timeout)
	}
}

func TestIndexAndWait_ContextCancelled(t *testing.T) {
	tasks := &fakeTasks{steps: []pollStep{status(cloud.TaskIndexing)}}
	cfg := fastConfig()
	cfg.PollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := New(tasks, cfg).IndexAndWait(ctx, Source{URL: "u"}, nil)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("IndexAndWait did not return after cancellation")
	}
}
