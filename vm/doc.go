// Package vm implements the curly virtual machine.
//
// This package contains:
//   - Tagged value representation (primitives, objects, arrays, functions)
//   - Scope stack and the object table behind every binding
//   - Instruction set, program builder and binary encoding
//   - Bytecode interpreter and built-in operations
//   - CBOR program images
package vm
