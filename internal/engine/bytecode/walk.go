package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one decoded instruction. Operands excludes the opcode byte
// and any switch alignment padding.
type Instruction struct {
	PC       int
	Op       Opcode
	Operands []byte
}

// Index returns the leading u2 operand, the constant pool index for member,
// type and ldc_w instructions. ldc carries a u1 index.
func (in Instruction) Index() uint16 {
	switch {
	case in.Op == Ldc && len(in.Operands) >= 1:
		return uint16(in.Operands[0])
	case len(in.Operands) >= 2:
		return binary.BigEndian.Uint16(in.Operands)
	default:
		return 0
	}
}

// Walk calls fn for every instruction in code, in order. It fails on an
// undefined opcode or a truncated instruction.
func Walk(code []byte, fn func(Instruction) error) error {
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !validOpcode(op) {
			return fmt.Errorf("undefined opcode 0x%02x at pc %d", uint8(op), pc)
		}
		size, skip, err := operandSize(code, pc)
		if err != nil {
			return err
		}
		start := pc + 1 + skip
		end := start + size
		if end > len(code) {
			return fmt.Errorf("truncated %s at pc %d", op, pc)
		}
		if err := fn(Instruction{PC: pc, Op: op, Operands: code[start:end]}); err != nil {
			return err
		}
		pc = end
	}
	return nil
}

// operandSize returns the operand length and the alignment padding that
// precedes it for the instruction at pc.
func operandSize(code []byte, pc int) (int, int, error) {
	op := Opcode(code[pc])
	if n := operandLen[op]; n >= 0 {
		return int(n), 0, nil
	}

	switch op {
	case Wide:
		if pc+1 >= len(code) {
			return 0, 0, fmt.Errorf("truncated wide at pc %d", pc)
		}
		if Opcode(code[pc+1]) == Iinc {
			return 5, 0, nil
		}
		return 3, 0, nil
	case TableSwitch:
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		if base+12 > len(code) {
			return 0, 0, fmt.Errorf("truncated tableswitch at pc %d", pc)
		}
		low := int32(binary.BigEndian.Uint32(code[base+4:]))
		high := int32(binary.BigEndian.Uint32(code[base+8:]))
		if high < low {
			return 0, 0, fmt.Errorf("tableswitch at pc %d has high %d < low %d", pc, high, low)
		}
		return 12 + 4*int(int64(high)-int64(low)+1), pad, nil
	case LookupSwitch:
		pad := (4 - (pc+1)%4) % 4
		base := pc + 1 + pad
		if base+8 > len(code) {
			return 0, 0, fmt.Errorf("truncated lookupswitch at pc %d", pc)
		}
		pairs := int32(binary.BigEndian.Uint32(code[base+4:]))
		if pairs < 0 {
			return 0, 0, fmt.Errorf("lookupswitch at pc %d has negative pair count", pc)
		}
		return 8 + 8*int(pairs), pad, nil
	}
	return 0, 0, fmt.Errorf("no operand length for %s", op)
}
