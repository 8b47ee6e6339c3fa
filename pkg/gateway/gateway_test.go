package gateway

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

type fakeJobStore struct {
	mu   sync.Mutex
	next int64
}

func (f *fakeJobStore) Create(ctx context.Context, tenantID int64, platform string) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return &job.Job{
		QueryID:  job.NewQueryID(tenantID, f.next),
		TenantID: tenantID,
		Platform: platform,
		Ordinal:  f.next,
		Status:   job.StatusPending,
	}, nil
}

type fakeExecutor struct {
	mu      sync.Mutex
	ran     []string
	done    chan struct{}
	runErr  error
}

func (f *fakeExecutor) Run(ctx context.Context, t *tenant.Tenant, j *job.Job) error {
	f.mu.Lock()
	f.ran = append(f.ran, j.QueryID)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return f.runErr
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayTriggerReturnsImmediatelyAndRunsInBackground(t *testing.T) {
	jobs := &fakeJobStore{}
	exec := &fakeExecutor{done: make(chan struct{}, 1)}
	g := NewGateway(jobs, exec, silentLogger())

	te := &tenant.Tenant{ID: 7, DisplayName: "Acme"}
	j, err := g.Trigger(context.Background(), context.Background(), te, job.PlatformEmodal)
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Fatalf("status = %q, want pending", j.Status)
	}

	select {
	case <-exec.done:
	case <-time.After(time.Second):
		t.Fatal("executor.Run was not invoked in the background")
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if len(exec.ran) != 1 || exec.ran[0] != j.QueryID {
		t.Fatalf("ran = %v, want [%s]", exec.ran, j.QueryID)
	}
}
