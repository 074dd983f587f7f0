package bytecode

// Opcode is a single JVM instruction byte.
type Opcode uint8

const (
	Ldc             Opcode = 0x12
	LdcW            Opcode = 0x13
	TableSwitch     Opcode = 0xaa
	LookupSwitch    Opcode = 0xab
	GetStatic       Opcode = 0xb2
	PutStatic       Opcode = 0xb3
	GetField        Opcode = 0xb4
	PutField        Opcode = 0xb5
	InvokeVirtual   Opcode = 0xb6
	InvokeSpecial   Opcode = 0xb7
	InvokeStatic    Opcode = 0xb8
	InvokeInterface Opcode = 0xb9
	InvokeDynamic   Opcode = 0xba
	New             Opcode = 0xbb
	ANewArray       Opcode = 0xbd
	CheckCast       Opcode = 0xc0
	InstanceOf      Opcode = 0xc1
	Wide            Opcode = 0xc4
	MultiANewArray  Opcode = 0xc5
	Iinc            Opcode = 0x84
)

// OpKind is the reference-relevant classification of an opcode.
type OpKind uint8

const (
	KindOther OpKind = iota
	KindInvokeVirtual
	KindInvokeSpecial
	KindInvokeStatic
	KindInvokeInterface
	KindGetStatic
	KindPutStatic
	KindGetField
	KindPutField
	// KindTypeCast is checkcast.
	KindTypeCast
	// KindTypeOperand covers new, anewarray, multianewarray and instanceof.
	KindTypeOperand
	// KindConstant is ldc/ldc_w, which may load a class literal or method handle.
	KindConstant
)

var kinds = [256]OpKind{
	Ldc:             KindConstant,
	LdcW:            KindConstant,
	GetStatic:       KindGetStatic,
	PutStatic:       KindPutStatic,
	GetField:        KindGetField,
	PutField:        KindPutField,
	InvokeVirtual:   KindInvokeVirtual,
	InvokeSpecial:   KindInvokeSpecial,
	InvokeStatic:    KindInvokeStatic,
	InvokeInterface: KindInvokeInterface,
	New:             KindTypeOperand,
	ANewArray:       KindTypeOperand,
	MultiANewArray:  KindTypeOperand,
	CheckCast:       KindTypeCast,
	InstanceOf:      KindTypeOperand,
}

// Decode maps an opcode to its kind. invokedynamic is KindOther: its call
// site carries no owner class.
func Decode(op Opcode) OpKind {
	return kinds[op]
}

func (k OpKind) IsInvoke() bool {
	return k >= KindInvokeVirtual && k <= KindInvokeInterface
}

func (k OpKind) IsFieldAccess() bool {
	return k >= KindGetStatic && k <= KindPutField
}

// Operand lengths for fixed-size instructions; -1 marks variable length.
var operandLen = [256]int8{
	0x10: 1, 0x11: 2, 0x12: 1, 0x13: 2, 0x14: 2,
	0x15: 1, 0x16: 1, 0x17: 1, 0x18: 1, 0x19: 1,
	0x36: 1, 0x37: 1, 0x38: 1, 0x39: 1, 0x3a: 1,
	0x84: 2,
	0x99: 2, 0x9a: 2, 0x9b: 2, 0x9c: 2, 0x9d: 2, 0x9e: 2, 0x9f: 2, 0xa0: 2,
	0xa1: 2, 0xa2: 2, 0xa3: 2, 0xa4: 2, 0xa5: 2, 0xa6: 2, 0xa7: 2, 0xa8: 2,
	0xa9: 1, 0xaa: -1, 0xab: -1,
	0xb2: 2, 0xb3: 2, 0xb4: 2, 0xb5: 2, 0xb6: 2, 0xb7: 2, 0xb8: 2,
	0xb9: 4, 0xba: 4, 0xbb: 2, 0xbc: 1, 0xbd: 2,
	0xc0: 2, 0xc1: 2, 0xc4: -1, 0xc5: 3, 0xc6: 2, 0xc7: 2, 0xc8: 4, 0xc9: 4,
}

// validOpcode reports whether op is defined (0x00-0xc9, breakpoint, impdep1/2).
func validOpcode(op Opcode) bool {
	return op <= 0xc9 || op == 0xca || op == 0xfe || op == 0xff
}

var names = map[Opcode]string{
	Ldc: "ldc", LdcW: "ldc_w", TableSwitch: "tableswitch", LookupSwitch: "lookupswitch",
	GetStatic: "getstatic", PutStatic: "putstatic", GetField: "getfield", PutField: "putfield",
	InvokeVirtual: "invokevirtual", InvokeSpecial: "invokespecial", InvokeStatic: "invokestatic",
	InvokeInterface: "invokeinterface", InvokeDynamic: "invokedynamic", New: "new",
	ANewArray: "anewarray", CheckCast: "checkcast", InstanceOf: "instanceof", Wide: "wide",
	MultiANewArray: "multianewarray", Iinc: "iinc",
}

func (op Opcode) String() string {
	if n, ok := names[op]; ok {
		return n
	}
	return "op_" + hex2(uint8(op))
}

func hex2(b uint8) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}
