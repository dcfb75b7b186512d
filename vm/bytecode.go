package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode identifies a single VM instruction. The numeric values double as
// the one-byte tags of the flat byte encoding (see encoding.go).
type Opcode byte

// Core instruction set.
const (
	OpReturn         Opcode = 0x01 // pop return value, unwind to return marker
	OpAdd            Opcode = 0x02 // pop b, pop a, push a+b
	OpSub            Opcode = 0x03 // pop b, pop a, push a-b
	OpDiv            Opcode = 0x04 // pop b, pop a, push a/b
	OpMul            Opcode = 0x05 // pop b, pop a, push a*b
	OpLess           Opcode = 0x06 // pop b, pop a, push a<b
	OpLoadNumConst   Opcode = 0x07 // push number operand
	OpLoadStrConst   Opcode = 0x08 // push string operand
	OpStore          Opcode = 0x09 // pop value, declare name in current scope
	OpLoad           Opcode = 0x0A // push located binding (or undefined)
	OpLoadMember     Opcode = 0x0B // pop key, pop object, push object[key]
	OpCall           Opcode = 0x0C // pop argc args, pop callee, invoke
	OpPopTop         Opcode = 0x0D // discard top of stack
	OpSetupLoop      Opcode = 0x0E // push a block scope
	OpPopJumpIfFalse Opcode = 0x0F // pop, jump to target if falsy
	OpJumpAbsolute   Opcode = 0x10 // jump to target
	OpPopBlock       Opcode = 0x11 // pop current scope and free its entries
	OpInplaceAdd     Opcode = 0x12 // pop located number, increment in place
	OpLoadProp       Opcode = 0x13 // pop object, push object.name
	OpDeclareFunc    Opcode = 0x14 // bind function at name, skip its body
)

// Objects, comparisons and logic.
const (
	OpCreateObj Opcode = 0x15 // push empty object
	OpStoreProp Opcode = 0x16 // pop value, pop object, object.name = value
	OpGreater   Opcode = 0x17
	OpEqEq      Opcode = 0x18
	OpEqEqEq    Opcode = 0x19
	OpAnd       Opcode = 0x1A
	OpOr        Opcode = 0x1B
	OpMod       Opcode = 0x1C
	OpLessEq    Opcode = 0x1D
	OpGreaterEq Opcode = 0x1E
	OpNotEq     Opcode = 0x1F
	OpNotEqEq   Opcode = 0x20
	OpNot       Opcode = 0x21
	OpNegate    Opcode = 0x22
	OpPlus      Opcode = 0x23 // unary numeric coercion
)

// Bitwise operators.
const (
	OpBitAnd      Opcode = 0x24
	OpBitOr       Opcode = 0x25
	OpBitXor      Opcode = 0x26
	OpShiftLeft   Opcode = 0x27
	OpShiftRight  Opcode = 0x28
	OpUShiftRight Opcode = 0x29
)

// Constants, bindings and stack shuffling.
const (
	OpInplaceSub    Opcode = 0x2A // pop located number, decrement in place
	OpLoadTrue      Opcode = 0x2B
	OpLoadFalse     Opcode = 0x2C
	OpLoadNull      Opcode = 0x2D
	OpLoadUndefined Opcode = 0x2E
	OpBuildArray    Opcode = 0x2F // pop n values, push array
	OpStoreMember   Opcode = 0x30 // pop value, pop key, pop object, object[key] = value
	OpStoreConst    Opcode = 0x31 // pop value, declare const in current scope
	OpStoreVar      Opcode = 0x32 // pop value, bind in nearest function scope
	OpAssign        Opcode = 0x33 // pop value, update nearest existing binding
	OpMakeFunc      Opcode = 0x34 // push function value, skip its body
	OpDup           Opcode = 0x35
	OpDup2          Opcode = 0x36
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OperandKind describes which payload field of an Instruction is used.
type OperandKind uint8

const (
	OperandNone   OperandKind = iota // no payload
	OperandNumber                    // Num
	OperandName                      // Name
	OperandArgc                      // Arg, fits in one byte
	OperandTarget                    // Arg, an instruction address
	OperandCount                     // Arg, an element count
	OperandFunc                      // Func
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name    string
	Operand OperandKind
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpReturn:         {"RETURN", OperandNone},
	OpAdd:            {"ADD", OperandNone},
	OpSub:            {"SUB", OperandNone},
	OpDiv:            {"DIV", OperandNone},
	OpMul:            {"MUL", OperandNone},
	OpLess:           {"LESS", OperandNone},
	OpLoadNumConst:   {"LOAD_NUM_CONST", OperandNumber},
	OpLoadStrConst:   {"LOAD_STR_CONST", OperandName},
	OpStore:          {"STORE", OperandName},
	OpLoad:           {"LOAD", OperandName},
	OpLoadMember:     {"LOAD_MEMBER", OperandNone},
	OpCall:           {"CALL", OperandArgc},
	OpPopTop:         {"POP_TOP", OperandNone},
	OpSetupLoop:      {"SETUP_LOOP", OperandNone},
	OpPopJumpIfFalse: {"POP_JUMP_IF_FALSE", OperandTarget},
	OpJumpAbsolute:   {"JUMP_ABSOLUTE", OperandTarget},
	OpPopBlock:       {"POP_BLOCK", OperandNone},
	OpInplaceAdd:     {"INPLACE_ADD", OperandNone},
	OpLoadProp:       {"LOAD_PROP", OperandName},
	OpDeclareFunc:    {"DECLARE_FUNC", OperandFunc},

	OpCreateObj: {"CREATE_OBJ", OperandNone},
	OpStoreProp: {"STORE_PROP", OperandName},
	OpGreater:   {"GREATER", OperandNone},
	OpEqEq:      {"EQ_EQ", OperandNone},
	OpEqEqEq:    {"EQ_EQ_EQ", OperandNone},
	OpAnd:       {"AND", OperandNone},
	OpOr:        {"OR", OperandNone},
	OpMod:       {"MOD", OperandNone},
	OpLessEq:    {"LESS_EQ", OperandNone},
	OpGreaterEq: {"GREATER_EQ", OperandNone},
	OpNotEq:     {"NOT_EQ", OperandNone},
	OpNotEqEq:   {"NOT_EQ_EQ", OperandNone},
	OpNot:       {"NOT", OperandNone},
	OpNegate:    {"NEGATE", OperandNone},
	OpPlus:      {"PLUS", OperandNone},

	OpBitAnd:      {"BIT_AND", OperandNone},
	OpBitOr:       {"BIT_OR", OperandNone},
	OpBitXor:      {"BIT_XOR", OperandNone},
	OpShiftLeft:   {"SHIFT_LEFT", OperandNone},
	OpShiftRight:  {"SHIFT_RIGHT", OperandNone},
	OpUShiftRight: {"USHIFT_RIGHT", OperandNone},

	OpInplaceSub:    {"INPLACE_SUB", OperandNone},
	OpLoadTrue:      {"LOAD_TRUE", OperandNone},
	OpLoadFalse:     {"LOAD_FALSE", OperandNone},
	OpLoadNull:      {"LOAD_NULL", OperandNone},
	OpLoadUndefined: {"LOAD_UNDEFINED", OperandNone},
	OpBuildArray:    {"BUILD_ARRAY", OperandCount},
	OpStoreMember:   {"STORE_MEMBER", OperandNone},
	OpStoreConst:    {"STORE_CONST", OperandName},
	OpStoreVar:      {"STORE_VAR", OperandName},
	OpAssign:        {"ASSIGN", OperandName},
	OpMakeFunc:      {"MAKE_FUNC", OperandFunc},
	OpDup:           {"DUP", OperandNone},
	OpDup2:          {"DUP2", OperandNone},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Instructions and programs
// ---------------------------------------------------------------------------

// FuncInfo is the operand of DeclareFunc and MakeFunc. Start is the first
// body instruction; End is the address of the body's terminating Return.
type FuncInfo struct {
	Start   int      `cbor:"start"`
	End     int      `cbor:"end"`
	Mutable bool     `cbor:"mutable"`
	Params  []string `cbor:"params"`
	Name    string   `cbor:"name"`
	// BindsName declares Name in the function's own call scope, so a
	// named function expression can refer to itself.
	BindsName bool `cbor:"binds_name"`
}

// Instruction is one VM instruction. Only the payload field named by the
// opcode's OperandKind is meaningful.
type Instruction struct {
	Op   Opcode    `cbor:"op"`
	Num  float64   `cbor:"num"`
	Name string    `cbor:"name,omitempty"`
	Arg  int       `cbor:"arg,omitempty"`
	Func *FuncInfo `cbor:"func,omitempty"`
}

func (ins Instruction) String() string {
	info := ins.Op.Info()
	switch info.Operand {
	case OperandNumber:
		return fmt.Sprintf("%s %s", info.Name, strconv.FormatFloat(ins.Num, 'g', -1, 64))
	case OperandName:
		return fmt.Sprintf("%s %q", info.Name, ins.Name)
	case OperandArgc, OperandCount:
		return fmt.Sprintf("%s %d", info.Name, ins.Arg)
	case OperandTarget:
		return fmt.Sprintf("%s -> %04d", info.Name, ins.Arg)
	case OperandFunc:
		f := ins.Func
		if f == nil {
			return info.Name + " <nil>"
		}
		s := fmt.Sprintf("%s %s(%s) [%04d, %04d) mutable=%t",
			info.Name, f.Name, strings.Join(f.Params, ", "), f.Start, f.End, f.Mutable)
		if f.BindsName {
			s += " binds-name"
		}
		return s
	}
	return info.Name
}

// Program is a linear instruction stream. Base is the address of Code[0];
// it is non-zero for chunks compiled to be appended to a running VM.
// Lines, when present, maps each instruction to its source line.
type Program struct {
	Base  int           `cbor:"base"`
	Code  []Instruction `cbor:"code"`
	Lines []int         `cbor:"lines,omitempty"`
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.Code)
}

// End returns the address just past the last instruction.
func (p *Program) End() int {
	return p.Base + len(p.Code)
}

// Line returns the source line recorded for the instruction at addr, or 0.
func (p *Program) Line(addr int) int {
	i := addr - p.Base
	if i < 0 || i >= len(p.Lines) {
		return 0
	}
	return p.Lines[i]
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing programs
// ---------------------------------------------------------------------------

// unpatched marks a jump whose target is not known yet.
const unpatched = -1

// Builder appends instructions to a program and back-patches jumps.
type Builder struct {
	base  int
	code  []Instruction
	lines []int
	line  int
}

// NewBuilder creates a builder for a program starting at address 0.
func NewBuilder() *Builder {
	return NewBuilderAt(0)
}

// NewBuilderAt creates a builder whose first instruction lives at base.
func NewBuilderAt(base int) *Builder {
	return &Builder{
		base: base,
		code: make([]Instruction, 0, 64),
	}
}

// Pos returns the address the next instruction will get.
func (b *Builder) Pos() int {
	return b.base + len(b.code)
}

// SetLine sets the source line attached to subsequently emitted instructions.
func (b *Builder) SetLine(line int) {
	b.line = line
}

// EmitInstruction appends ins and returns its address.
func (b *Builder) EmitInstruction(ins Instruction) int {
	addr := b.Pos()
	b.code = append(b.code, ins)
	b.lines = append(b.lines, b.line)
	return addr
}

// Emit appends an opcode with no operands.
func (b *Builder) Emit(op Opcode) int {
	return b.EmitInstruction(Instruction{Op: op})
}

// EmitNum appends an opcode with a number operand.
func (b *Builder) EmitNum(op Opcode, n float64) int {
	return b.EmitInstruction(Instruction{Op: op, Num: n})
}

// EmitName appends an opcode with a name operand.
func (b *Builder) EmitName(op Opcode, name string) int {
	return b.EmitInstruction(Instruction{Op: op, Name: name})
}

// EmitArg appends an opcode with an integer operand.
func (b *Builder) EmitArg(op Opcode, arg int) int {
	return b.EmitInstruction(Instruction{Op: op, Arg: arg})
}

// EmitFunc appends DeclareFunc or MakeFunc. Start and End are filled in
// later with PatchFunc once the body has been emitted.
func (b *Builder) EmitFunc(op Opcode, name string, params []string, mutable bool) int {
	return b.EmitInstruction(Instruction{Op: op, Func: &FuncInfo{
		Start:   b.Pos() + 1,
		End:     unpatched,
		Mutable: mutable,
		Params:  params,
		Name:    name,
	}})
}

// BindFuncName marks the function at addr as binding its own name on
// entry.
func (b *Builder) BindFuncName(addr int) {
	b.at(addr).Func.BindsName = true
}

// PatchFunc sets the End of the function instruction at addr.
func (b *Builder) PatchFunc(addr, end int) {
	b.at(addr).Func.End = end
}

// EmitJump emits a jump with a placeholder target and returns its address.
func (b *Builder) EmitJump(op Opcode) int {
	return b.EmitArg(op, unpatched)
}

// PatchJump points the jump at addr to the current position.
func (b *Builder) PatchJump(addr int) {
	b.PatchJumpTo(addr, b.Pos())
}

// PatchJumpTo points the jump at addr to target.
func (b *Builder) PatchJumpTo(addr, target int) {
	b.at(addr).Arg = target
}

func (b *Builder) at(addr int) *Instruction {
	return &b.code[addr-b.base]
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump target that may be referenced before it is placed.
type Label struct {
	resolved bool
	target   int
	refs     []int // addresses of jumps waiting for this label
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position and patches every
// forward reference to it.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.target = b.Pos()
	for _, ref := range label.refs {
		b.PatchJumpTo(ref, label.target)
	}
	label.refs = nil
}

// EmitJumpTo emits a jump to label. Backward jumps use the known target
// directly; forward jumps are patched when the label is marked.
func (b *Builder) EmitJumpTo(op Opcode, label *Label) int {
	if label.resolved {
		return b.EmitArg(op, label.target)
	}
	addr := b.EmitJump(op)
	label.refs = append(label.refs, addr)
	return addr
}

// Program returns the constructed program.
func (b *Builder) Program() *Program {
	return &Program{Base: b.base, Code: b.code, Lines: b.lines}
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble returns one line per instruction.
func Disassemble(p *Program) string {
	var sb strings.Builder
	for i, ins := range p.Code {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%04d  %s", p.Base+i, ins)
	}
	return sb.String()
}
