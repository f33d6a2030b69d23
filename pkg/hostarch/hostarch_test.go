package hostarch

import "testing"

func TestRounding(t *testing.T) {
	for _, tc := range []struct {
		addr     Addr
		down, up Addr
	}{
		{addr: 0, down: 0, up: 0},
		{addr: 1, down: 0, up: PageSize},
		{addr: PageSize, down: PageSize, up: PageSize},
		{addr: PageSize + 7, down: PageSize, up: 2 * PageSize},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("%v.RoundDown() = %v, want %v", tc.addr, got, tc.down)
		}
		if got, ok := tc.addr.RoundUp(); !ok || got != tc.up {
			t.Errorf("%v.RoundUp() = %v, %v; want %v", tc.addr, got, ok, tc.up)
		}
	}
}

func TestAddLengthOverflow(t *testing.T) {
	if _, ok := Addr(^uintptr(0)).AddLength(1); ok {
		t.Errorf("AddLength overflow not detected")
	}
	if end, ok := Addr(0x1000).AddLength(0x10); !ok || end != 0x1010 {
		t.Errorf("AddLength = %v, %v", end, ok)
	}
}
