package vm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Flat byte encoding
// ---------------------------------------------------------------------------
//
// Each instruction is its one-byte opcode followed by its operands:
//
//	number        8 bytes, big-endian IEEE-754
//	name          4-byte big-endian length, then UTF-8 bytes
//	argc          1 byte
//	target/count  8 bytes, big-endian
//	func          start (8), end (8), flags (1), param count (8),
//	              params (length-prefixed), name (length-prefixed)
//
// Function flags: bit 0 mutable, bit 1 binds its own name.
//
// The encoding carries neither the base address nor the line table.

const (
	funcMutable   byte = 1 << 0
	funcBindsName byte = 1 << 1
)

// Encode serializes the instructions of p.
func Encode(p *Program) ([]byte, error) {
	buf := make([]byte, 0, len(p.Code)*4)
	for addr, ins := range p.Code {
		info, ok := opcodeTable[ins.Op]
		if !ok {
			return nil, fmt.Errorf("encode: unknown opcode 0x%02X at %d", byte(ins.Op), p.Base+addr)
		}
		buf = append(buf, byte(ins.Op))
		switch info.Operand {
		case OperandNumber:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(ins.Num))
		case OperandName:
			buf = appendString(buf, ins.Name)
		case OperandArgc:
			if ins.Arg < 0 || ins.Arg > math.MaxUint8 {
				return nil, fmt.Errorf("encode: argument count %d at %d does not fit in a byte", ins.Arg, p.Base+addr)
			}
			buf = append(buf, byte(ins.Arg))
		case OperandTarget, OperandCount:
			buf = binary.BigEndian.AppendUint64(buf, uint64(int64(ins.Arg)))
		case OperandFunc:
			f := ins.Func
			if f == nil {
				return nil, fmt.Errorf("encode: %s at %d has no function operand", ins.Op, p.Base+addr)
			}
			buf = binary.BigEndian.AppendUint64(buf, uint64(int64(f.Start)))
			buf = binary.BigEndian.AppendUint64(buf, uint64(int64(f.End)))
			var flags byte
			if f.Mutable {
				flags |= funcMutable
			}
			if f.BindsName {
				flags |= funcBindsName
			}
			buf = append(buf, flags)
			buf = binary.BigEndian.AppendUint64(buf, uint64(len(f.Params)))
			for _, param := range f.Params {
				buf = appendString(buf, param)
			}
			buf = appendString(buf, f.Name)
		}
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// Decode parses bytes produced by Encode into a program based at 0.
func Decode(data []byte) (*Program, error) {
	d := decoder{data: data}
	p := &Program{}
	for d.pos < len(d.data) {
		at := d.pos
		op := Opcode(d.data[d.pos])
		d.pos++
		info, ok := opcodeTable[op]
		if !ok {
			return nil, fmt.Errorf("decode: unknown opcode 0x%02X at byte %d", byte(op), at)
		}
		ins := Instruction{Op: op}
		switch info.Operand {
		case OperandNumber:
			ins.Num = math.Float64frombits(d.readUint64())
		case OperandName:
			ins.Name = d.readString()
		case OperandArgc:
			ins.Arg = int(d.readByte())
		case OperandTarget, OperandCount:
			ins.Arg = int(int64(d.readUint64()))
		case OperandFunc:
			f := &FuncInfo{}
			f.Start = int(int64(d.readUint64()))
			f.End = int(int64(d.readUint64()))
			flags := d.readByte()
			f.Mutable = flags&funcMutable != 0
			f.BindsName = flags&funcBindsName != 0
			n := d.readUint64()
			if d.err == nil && n > uint64(len(d.data)-d.pos)/4 {
				d.fail("parameter count %d exceeds remaining input", n)
			}
			if d.err == nil && n > 0 {
				f.Params = make([]string, 0, n)
				for i := uint64(0); i < n && d.err == nil; i++ {
					f.Params = append(f.Params, d.readString())
				}
			}
			f.Name = d.readString()
			ins.Func = f
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode: %s at byte %d: %w", op, at, d.err)
		}
		p.Code = append(p.Code, ins)
	}
	return p, nil
}

// decoder reads big-endian fields and records the first short read.
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if len(d.data)-d.pos < n {
		d.fail("unexpected end of input: need %d bytes, have %d", n, len(d.data)-d.pos)
		return false
	}
	return true
}

func (d *decoder) readByte() byte {
	if !d.need(1) {
		return 0
	}
	b := d.data[d.pos]
	d.pos++
	return b
}

func (d *decoder) readUint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) readString() string {
	if !d.need(4) {
		return ""
	}
	n := int(binary.BigEndian.Uint32(d.data[d.pos:]))
	d.pos += 4
	if !d.need(n) {
		return ""
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return s
}
