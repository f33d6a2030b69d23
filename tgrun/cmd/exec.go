// Package cmd holds implementations of the tgrun commands.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sync/errgroup"

	"github.com/walteh/tgexec/pkg/abi/linux"
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/log"
	"github.com/walteh/tgexec/pkg/sentry/kernel"
	"github.com/walteh/tgexec/pkg/sentry/kernel/auth"
	"github.com/walteh/tgexec/pkg/sentry/loader/loadertest"
	"github.com/walteh/tgexec/pkg/sentry/mm"
	"github.com/walteh/tgexec/pkg/sentry/vfs"
	"github.com/walteh/tgexec/tgrun/config"
)

// nextEntry is the entry point of the built-in /bin/next.
const nextEntry = 0x402000

// intList is a flag.Value holding a comma separated list of integers.
type intList []int

func (l *intList) String() string {
	strs := make([]string, 0, len(*l))
	for _, v := range *l {
		strs = append(strs, strconv.Itoa(v))
	}
	return strings.Join(strs, ",")
}

func (l *intList) Set(s string) error {
	*l = nil
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return fmt.Errorf("invalid thread index %q: %w", f, err)
		}
		*l = append(*l, v)
	}
	return nil
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

// Exec implements subcommands.Command for the "exec" command. It starts a
// multithreaded process and has one or more of its threads call execve.
type Exec struct {
	// Config is the loaded configuration, set by main.
	Config *config.Config

	specFile string
	threads  int
	execFrom intList
	target   string
	retries  uint64
	timeout  time.Duration
	installs stringList
}

// Name implements subcommands.Command.Name.
func (*Exec) Name() string {
	return "exec"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Exec) Synopsis() string {
	return "run a multithreaded process and exec from one of its threads"
}

// Usage implements subcommands.Command.Usage.
func (*Exec) Usage() string {
	return `exec [flags] - start the process described by an OCI spec, clone
threads, and call execve from the chosen threads. Prints the thread that
succeeded and the process's exit status.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Exec) SetFlags(f *flag.FlagSet) {
	e.execFrom = intList{1}
	f.StringVar(&e.specFile, "spec", "", "path to an OCI runtime config.json describing the initial process")
	f.IntVar(&e.threads, "threads", 3, "number of threads in the process")
	f.Var(&e.execFrom, "exec-from", "comma separated indexes of the threads that call execve; 0 is the leader")
	f.StringVar(&e.target, "target", "/bin/next", "program to execve")
	f.Uint64Var(&e.retries, "retries", 5, "times to retry an execve that fails with EAGAIN")
	f.DurationVar(&e.timeout, "timeout", 30*time.Second, "kill the process if it runs longer than this")
	f.Var(&e.installs, "install", "host:guest, copy a host file into the sandbox filesystem as an executable; repeatable")
}

// Execute implements subcommands.Command.Execute.
func (e *Exec) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := e.Config
	if conf == nil {
		conf = config.Default()
	}
	proc, err := LoadProcess(e.specFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exec: %v\n", err)
		return subcommands.ExitFailure
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	res, err := e.Run(ctx, conf, proc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exec: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, ex := range res.Execs {
		if ex.Err != nil {
			fmt.Printf("thread %d: execve failed: %v\n", ex.TID, ex.Err)
		} else {
			fmt.Printf("thread %d: execve succeeded, now thread %d\n", ex.TID, res.PID)
		}
	}
	fmt.Printf("process %d: %v\n", res.PID, res.Status)
	if res.Status.Signaled() || res.Status.Code != 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// ExecOutcome is the result of one thread's execve.
type ExecOutcome struct {
	// TID is the thread's ID before the execve.
	TID kernel.ThreadID

	// Err is the error returned by the last attempt.
	Err error
}

// Result describes a finished run.
type Result struct {
	PID    kernel.ThreadID
	Execs  []ExecOutcome
	Status kernel.ExitStatus
}

// Run starts proc, clones it to the configured number of threads and has
// the selected threads execve the target. It returns once the process has
// exited.
func (e *Exec) Run(ctx context.Context, conf *config.Config, proc *specs.Process) (*Result, error) {
	if e.threads < 1 {
		return nil, fmt.Errorf("need at least one thread, got %d", e.threads)
	}
	for _, i := range e.execFrom {
		if i < 0 || i >= e.threads {
			return nil, fmt.Errorf("thread index %d out of range [0, %d)", i, e.threads)
		}
	}
	fs, err := e.buildFilesystem()
	if err != nil {
		return nil, err
	}
	k := kernel.New(conf.ToKernel(), fs)
	leader, err := k.NewProcess(kernel.ProcessArgs{
		Filename:    proc.Args[0],
		Argv:        proc.Args,
		Envv:        proc.Env,
		Credentials: credentialsFor(proc.User),
		Cwd:         proc.Cwd,
	})
	if err != nil {
		return nil, fmt.Errorf("starting %q: %w", proc.Args[0], err)
	}
	tg := leader.ThreadGroup()

	threads := []*kernel.Task{leader}
	for len(threads) < e.threads {
		t, err := leader.CloneThread()
		if err != nil {
			return nil, fmt.Errorf("cloning thread: %w", err)
		}
		threads = append(threads, t)
	}

	execArgs := kernel.ExecArgs{
		Pathname:     e.target,
		ResolveFinal: true,
	}
	execArgs.Argv, err = putVector(tg.MemoryManager(), mm.HeapBase, []string{e.target})
	if err != nil {
		return nil, err
	}

	res := &Result{PID: tg.ID(), Execs: make([]ExecOutcome, len(e.execFrom))}
	initiators := make(map[int]int, len(e.execFrom))
	for slot, i := range e.execFrom {
		initiators[i] = slot
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range threads {
		slot, ok := initiators[i]
		if !ok {
			t.Start(func(t *kernel.Task) {
				<-t.Interrupted()
			})
			continue
		}
		res.Execs[slot].TID = t.ThreadID()
		done := make(chan error, 1)
		t.Start(func(t *kernel.Task) {
			err := execWithRetry(gctx, t, execArgs, e.retries)
			done <- err
			if err != nil && !t.HasPendingKill() {
				// As a shell's child does when exec fails.
				t.ExitGroup(kernel.ExitStatus{Code: 127})
			}
		})
		g.Go(func() error {
			select {
			case err := <-done:
				res.Execs[slot].Err = err
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	g.Go(func() error {
		select {
		case <-tg.Exited():
			return nil
		case <-gctx.Done():
			log.Warningf("Killing process %d: %v", tg.ID(), gctx.Err())
			killProcess(k, tg.ID())
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status, err := tg.Reap()
	if err != nil {
		return nil, err
	}
	res.Status = status
	return res, nil
}

// killProcess sends SIGKILL to pid. A failure is logged; the caller is
// already giving up on the process.
func killProcess(k *kernel.Kernel, pid kernel.ThreadID) error {
	err := k.Kill(pid, linux.SignalInfo{Signo: linux.SIGKILL, Code: linux.SI_KERNEL})
	if err != nil {
		log.Warningf("Killing process %d failed: %v", pid, err)
	}
	return err
}

// execWithRetry calls execve, retrying while it fails with EAGAIN because
// another group operation is in flight. An EAGAIN caused by the task's own
// death is final.
func execWithRetry(ctx context.Context, t *kernel.Task, args kernel.ExecArgs, retries uint64) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)
	return backoff.RetryNotify(func() error {
		err := t.Execve(args)
		switch {
		case err == nil:
			return nil
		case linuxerr.Equals(linuxerr.EAGAIN, err) && !t.HasPendingKill():
			return err
		default:
			return backoff.Permanent(err)
		}
	}, b, func(err error, d time.Duration) {
		t.Infof("execve: %v; retrying in %v", err, d)
	})
}

// buildFilesystem returns the sandbox filesystem: built-in test programs
// plus any files named by -install.
func (e *Exec) buildFilesystem() (*vfs.Filesystem, error) {
	fs := vfs.New()
	if err := fs.MkdirAll("/bin", 0o755); err != nil {
		return nil, err
	}
	builtins := map[string][]byte{
		"/bin/init":   loadertest.SimpleELF(),
		"/bin/next":   loadertest.BuildELF(nextEntry, loadertest.Segment{Vaddr: nextEntry, Data: []byte{0xf4}}),
		"/bin/script": []byte("#!/bin/next\n"),
	}
	for p, data := range builtins {
		if err := fs.WriteFile(p, data, 0o755, auth.RootKUID, auth.RootKGID); err != nil {
			return nil, err
		}
	}
	for _, inst := range e.installs {
		host, guest, ok := strings.Cut(inst, ":")
		if !ok || !path.IsAbs(guest) {
			return nil, fmt.Errorf("invalid -install %q, want host:/guest/path", inst)
		}
		data, err := os.ReadFile(host)
		if err != nil {
			return nil, err
		}
		if err := fs.MkdirAll(path.Dir(guest), 0o755); err != nil {
			return nil, err
		}
		if err := fs.WriteFile(guest, data, 0o755, auth.RootKUID, auth.RootKGID); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// LoadProcess reads the process section of an OCI runtime spec. An empty
// path selects a process running /bin/init as root.
func LoadProcess(specFile string) (*specs.Process, error) {
	if specFile == "" {
		return &specs.Process{Args: []string{"/bin/init"}, Cwd: "/"}, nil
	}
	data, err := os.ReadFile(specFile)
	if err != nil {
		return nil, err
	}
	var spec specs.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", specFile, err)
	}
	if spec.Process == nil || len(spec.Process.Args) == 0 {
		return nil, fmt.Errorf("%q: process.args must not be empty", specFile)
	}
	return spec.Process, nil
}

func credentialsFor(u specs.User) *auth.Credentials {
	if u.UID == 0 && u.GID == 0 && len(u.AdditionalGids) == 0 {
		return auth.NewRootCredentials()
	}
	extra := make([]auth.KGID, 0, len(u.AdditionalGids))
	for _, gid := range u.AdditionalGids {
		extra = append(extra, auth.KGID(gid))
	}
	return auth.NewUserCredentials(auth.KUID(u.UID), auth.KGID(u.GID), extra)
}

// putVector writes a NULL-terminated array of strs at addr, followed by the
// strings themselves.
func putVector(m *mm.MemoryManager, addr hostarch.Addr, strs []string) (hostarch.Addr, error) {
	str := addr + hostarch.Addr(8*(len(strs)+1))
	for i, s := range strs {
		if _, err := m.CopyOut(str, append([]byte(s), 0)); err != nil {
			return 0, err
		}
		if err := m.CopyOutAddr(addr+hostarch.Addr(8*i), str); err != nil {
			return 0, err
		}
		str += hostarch.Addr(len(s) + 1)
	}
	if err := m.CopyOutAddr(addr+hostarch.Addr(8*len(strs)), 0); err != nil {
		return 0, err
	}
	return addr, nil
}
