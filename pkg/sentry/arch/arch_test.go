package arch

import "testing"

func TestResetForExec(t *testing.T) {
	c := New()
	c.Regs.Regs[3] = 42
	c.FPState[0] = 0xff
	c.SetTLS(0x7000)

	c.ResetForExec(0x401000, 0x7fff0000)

	if c.Regs.Regs[3] != 0 || c.TLS != 0 || c.FPState[0] != 0 {
		t.Errorf("state survived reset: %v regs=%v fp0=%#x", c, c.Regs.Regs, c.FPState[0])
	}
	if c.IP() != 0x401000 || c.Stack() != 0x7fff0000 {
		t.Errorf("got %v, want ip=0x401000 sp=0x7fff0000", c)
	}
}

func TestForkIsIndependent(t *testing.T) {
	c := New()
	f := c.Fork()
	f.FPState[1] = 1
	if c.FPState[1] != 0 {
		t.Errorf("fork shares FP state")
	}
}
