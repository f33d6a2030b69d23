package loader

import (
	"github.com/walteh/tgexec/pkg/errors/linuxerr"
	"github.com/walteh/tgexec/pkg/hostarch"
	"github.com/walteh/tgexec/pkg/sentry/mm"
)

const (
	// StackTop is the highest address of the initial stack.
	StackTop hostarch.Addr = 0x7fff_0000_0000

	// StackSize is the size of the initial stack mapping.
	StackSize = 256 * hostarch.PageSize
)

// Auxiliary vector keys placed on the initial stack.
const (
	atNull   = 0
	atPagesz = 6
	atEntry  = 9
)

// setupStack maps the initial stack and lays it out as the System V ABI
// expects: argc, argv pointers, NULL, envp pointers, NULL, auxv pairs, with
// the strings themselves above.
func setupStack(m *mm.MemoryManager, argv, envv []string, entry hostarch.Addr) (hostarch.Addr, error) {
	bottom := StackTop - StackSize
	if err := m.MMap(bottom, StackSize, "[stack]"); err != nil {
		return 0, err
	}

	sp := StackTop
	push := func(b []byte) (hostarch.Addr, error) {
		if uint64(sp-bottom) < uint64(len(b)) {
			return 0, linuxerr.WithMessage(linuxerr.E2BIG, "arguments do not fit on the initial stack")
		}
		sp -= hostarch.Addr(len(b))
		if _, err := m.CopyOut(sp, b); err != nil {
			return 0, err
		}
		return sp, nil
	}
	pushStrings := func(strs []string) ([]hostarch.Addr, error) {
		addrs := make([]hostarch.Addr, len(strs))
		for i := len(strs) - 1; i >= 0; i-- {
			addr, err := push(append([]byte(strs[i]), 0))
			if err != nil {
				return nil, err
			}
			addrs[i] = addr
		}
		return addrs, nil
	}

	envAddrs, err := pushStrings(envv)
	if err != nil {
		return 0, err
	}
	argAddrs, err := pushStrings(argv)
	if err != nil {
		return 0, err
	}

	var words []hostarch.Addr
	words = append(words, hostarch.Addr(len(argv)))
	words = append(words, argAddrs...)
	words = append(words, 0)
	words = append(words, envAddrs...)
	words = append(words, 0)
	words = append(words, atPagesz, hostarch.PageSize, atEntry, entry, atNull, 0)

	sp &^= 15
	need := hostarch.Addr(8 * len(words))
	if sp-bottom < need {
		return 0, linuxerr.WithMessage(linuxerr.E2BIG, "arguments do not fit on the initial stack")
	}
	sp -= need
	for i, w := range words {
		if err := m.CopyOutAddr(sp+hostarch.Addr(8*i), w); err != nil {
			return 0, err
		}
	}
	return sp, nil
}
