package kernel

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sync"
)

// lockedBuffer is a log target safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLog(t *testing.T) *lockedBuffer {
	t.Helper()
	var b lockedBuffer
	log.SetTarget(&b, "text")
	log.SetLevel(log.Debug)
	t.Cleanup(func() {
		log.SetTarget(os.Stderr, "text")
		log.SetLevel(log.Info)
	})
	return &b
}

func TestExitReportsExecBarrierSatisfied(t *testing.T) {
	out := captureLog(t)
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 3)
	leader, t2, t3 := ts[0], ts[1], ts[2]
	tid := t2.ThreadID()
	leader.Start(untilKilled)
	t3.Start(untilKilled)

	if err := t2.Execve(execArgs(t, t2, "/bin/next")); err != nil {
		t.Fatalf("Execve: %v", err)
	}
	want := fmt.Sprintf("execve by thread %d may proceed", tid)
	if got := strings.Count(out.String(), want); got != 1 {
		t.Errorf("log has %d lines containing %q, want 1:\n%s", got, want, out.String())
	}
}

func TestExitWithoutExecLogsNoBarrier(t *testing.T) {
	out := captureLog(t)
	k := newTestKernel(t, DefaultConfig())
	ts := newThreads(t, k, 3)

	// Leader exited and one other task left, but no execve is waiting.
	ts[0].Exit(ExitStatus{})
	ts[2].Exit(ExitStatus{})
	if got := ts[0].ThreadGroup().Registry().Len(); got != 2 {
		t.Fatalf("registry Len got %d, want 2", got)
	}
	if strings.Contains(out.String(), "may proceed") {
		t.Errorf("barrier reported without an execve in flight:\n%s", out.String())
	}
	ts[1].Exit(ExitStatus{})
}
