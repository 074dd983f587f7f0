package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, code []byte) []Instruction {
	t.Helper()
	var out []Instruction
	require.NoError(t, Walk(code, func(in Instruction) error {
		out = append(out, in)
		return nil
	}))
	return out
}

func TestDecode(t *testing.T) {
	tests := []struct {
		op   Opcode
		want OpKind
	}{
		{0xb2, KindGetStatic},
		{0xb3, KindPutStatic},
		{0xb4, KindGetField},
		{0xb5, KindPutField},
		{0xb6, KindInvokeVirtual},
		{0xb7, KindInvokeSpecial},
		{0xb8, KindInvokeStatic},
		{0xb9, KindInvokeInterface},
		{0xba, KindOther},
		{0xc0, KindTypeCast},
		{0xc1, KindTypeOperand},
		{0xbb, KindTypeOperand},
		{0x00, KindOther},
		{0xb1, KindOther},
	}
	for _, tt := range tests {
		if got := Decode(tt.op); got != tt.want {
			t.Errorf("Decode(%s) = %d, want %d", tt.op, got, tt.want)
		}
	}
	assert.True(t, KindInvokeInterface.IsInvoke())
	assert.False(t, KindGetField.IsInvoke())
	assert.True(t, KindPutField.IsFieldAccess())
	assert.False(t, KindTypeCast.IsFieldAccess())
}

func TestWalkFixedLength(t *testing.T) {
	code := []byte{
		0x2a,             // aload_0
		0xb4, 0x00, 0x02, // getfield #2
		0x12, 0x05, // ldc #5
		0xb9, 0x00, 0x07, 0x02, 0x00, // invokeinterface #7 2 0
		0xb1, // return
	}
	ins := collect(t, code)
	require.Len(t, ins, 5)
	assert.Equal(t, []int{0, 1, 4, 6, 11}, []int{ins[0].PC, ins[1].PC, ins[2].PC, ins[3].PC, ins[4].PC})
	assert.Equal(t, uint16(2), ins[1].Index())
	assert.Equal(t, uint16(5), ins[2].Index())
	assert.Equal(t, uint16(7), ins[3].Index())
}

func TestWalkSwitchPadding(t *testing.T) {
	// tableswitch at pc 1 pads two bytes to reach a 4-byte boundary.
	code := []byte{
		0x03,       // iconst_0
		0xaa,       // tableswitch
		0x00, 0x00, // padding
		0x00, 0x00, 0x00, 0x10, // default
		0x00, 0x00, 0x00, 0x00, // low
		0x00, 0x00, 0x00, 0x01, // high
		0x00, 0x00, 0x00, 0x10,
		0x00, 0x00, 0x00, 0x10,
		0xab,             // lookupswitch at pc 24, operands aligned to 28
		0x00, 0x00, 0x00, // padding
		0x00, 0x00, 0x00, 0x10, // default
		0x00, 0x00, 0x00, 0x01, // npairs
		0x00, 0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x10,
		0xb8, 0x00, 0x09, // invokestatic #9
	}
	ins := collect(t, code)
	require.Len(t, ins, 4)
	assert.Equal(t, TableSwitch, ins[1].Op)
	assert.Equal(t, LookupSwitch, ins[2].Op)
	assert.Equal(t, 24, ins[2].PC)
	assert.Equal(t, InvokeStatic, ins[3].Op)
	assert.Equal(t, uint16(9), ins[3].Index())
}

func TestWalkWide(t *testing.T) {
	code := []byte{
		0xc4, 0x15, 0x01, 0x00, // wide iload 256
		0xc4, 0x84, 0x01, 0x00, 0x00, 0x01, // wide iinc 256 1
		0xc0, 0x00, 0x03, // checkcast #3
	}
	ins := collect(t, code)
	require.Len(t, ins, 3)
	assert.Equal(t, CheckCast, ins[2].Op)
	assert.Equal(t, 10, ins[2].PC)
}

func TestWalkErrors(t *testing.T) {
	cases := map[string][]byte{
		"undefined opcode":  {0xcb},
		"truncated operand": {0xb6, 0x00},
		"truncated switch":  {0xaa, 0x00, 0x00, 0x00},
		"inverted switch": {
			0xaa, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0x00, 0x00, 0x00, 0x05,
			0x00, 0x00, 0x00, 0x01,
		},
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Walk(code, func(Instruction) error { return nil }))
		})
	}
}
