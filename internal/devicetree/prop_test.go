package devicetree

import (
	"reflect"
	"testing"

	"github.com/robert-at-pretension-io/dtoc/internal/devicetree/dttest"
)

func TestNewPropTyping(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		typ  Type
		list bool
		n    int
	}{
		{"empty is bool", nil, TypeBool, false, 1},
		{"single string", dttest.Str("okay"), TypeString, false, 1},
		{"string list", dttest.Str("a,b", "c"), TypeString, true, 2},
		{"single cell", dttest.U32(5), TypeInt, false, 1},
		{"cell list", dttest.U32(1, 2, 3), TypeInt, true, 3},
		{"single byte", []byte{7}, TypeByte, false, 1},
		{"byte list", []byte{1, 2, 3}, TypeByte, true, 3},
		{"lone nul is byte", []byte{0}, TypeByte, false, 1},
		{"unprintable is not string", []byte{'a', 1, 'b', 0}, TypeInt, false, 1},
		{"empty string segment", []byte{'a', 0, 0, 0}, TypeInt, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProp("x", tt.data)
			if p.Type != tt.typ || p.List != tt.list || p.Len() != tt.n {
				t.Fatalf("got type=%s list=%v len=%d, want type=%s list=%v len=%d",
					p.Type, p.List, p.Len(), tt.typ, tt.list, tt.n)
			}
		})
	}
}

func TestWidenIntToList(t *testing.T) {
	p := NewProp("x", dttest.U32(5))
	other := NewProp("x", dttest.U32(1, 2, 3))
	if err := p.Widen(other); err != nil {
		t.Fatal(err)
	}
	if !p.List || !reflect.DeepEqual(p.Ints, []uint64{5, 0, 0}) {
		t.Fatalf("got list=%v ints=%v", p.List, p.Ints)
	}
}

func TestWidenBoolToInt(t *testing.T) {
	p := NewProp("x", nil)
	if err := p.Widen(NewProp("x", dttest.U32(9))); err != nil {
		t.Fatal(err)
	}
	if p.Type != TypeInt || p.List || !reflect.DeepEqual(p.Ints, []uint64{0}) {
		t.Fatalf("got %+v", p)
	}
}

func TestWidenIntToBytes(t *testing.T) {
	p := NewProp("x", dttest.U32(0x01020304))
	if err := p.Widen(NewProp("x", []byte{1, 2, 3, 4, 5})); err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4, 0}
	if p.Type != TypeByte || !p.List || !reflect.DeepEqual(p.Bytes, want) {
		t.Fatalf("got type=%s bytes=%v", p.Type, p.Bytes)
	}
}

func TestWidenNarrowerLeavesWideAlone(t *testing.T) {
	p := NewProp("x", []byte{1, 2, 3})
	if err := p.Widen(NewProp("x", dttest.U32(7))); err != nil {
		t.Fatal(err)
	}
	if p.Type != TypeByte || !reflect.DeepEqual(p.Bytes, []byte{1, 2, 3, 0}) {
		t.Fatalf("got type=%s bytes=%v", p.Type, p.Bytes)
	}
}

func TestWidenStringIntConflict(t *testing.T) {
	p := NewProp("x", dttest.U32(1))
	if err := p.Widen(NewProp("x", dttest.Str("s"))); err == nil {
		t.Fatal("expected error widening int with string")
	}
	q := NewProp("x", dttest.Str("s"))
	if err := q.Widen(NewProp("x", dttest.U32(1))); err == nil {
		t.Fatal("expected error widening string with int")
	}
}

func TestWidenIdempotent(t *testing.T) {
	p := NewProp("x", dttest.U32(5))
	other := NewProp("x", dttest.U32(1, 2, 3))
	if err := p.Widen(other); err != nil {
		t.Fatal(err)
	}
	before := p.Clone()
	if err := p.Widen(before); err != nil {
		t.Fatal(err)
	}
	if err := p.Widen(other); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(p, before) {
		t.Fatalf("second widen changed value: %+v vs %+v", p, before)
	}
}

func TestGroupCells(t *testing.T) {
	p := NewProp("reg", dttest.U32(0, 0x1000, 0, 0x200))
	if err := p.GroupCells(2, 2); err != nil {
		t.Fatal(err)
	}
	if p.Type != TypeInt64 || !reflect.DeepEqual(p.Ints, []uint64{0x1000, 0x200}) {
		t.Fatalf("got %s %v", p.Type, p.Ints)
	}

	hi := NewProp("reg", dttest.U32(1, 2, 3))
	if err := hi.GroupCells(2, 1); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(hi.Ints, []uint64{1<<32 | 2, 3}) {
		t.Fatalf("got %v", hi.Ints)
	}

	bad := NewProp("reg", dttest.U32(1, 2, 3))
	if err := bad.GroupCells(2, 2); err == nil {
		t.Fatal("expected error for short reg")
	}

	same := NewProp("reg", dttest.U32(1, 2))
	if err := same.GroupCells(1, 1); err != nil || same.Type != TypeInt {
		t.Fatalf("1/1 layout should be untouched: %v %s", err, same.Type)
	}
}

func TestCName(t *testing.T) {
	if got := CName("serial@ff180000"); got != "serial_at_ff180000" {
		t.Fatalf("got %q", got)
	}
	if got := CName("rockchip,rk3288-uart.v2"); got != "rockchip_rk3288_uart_v2" {
		t.Fatalf("got %q", got)
	}
}
