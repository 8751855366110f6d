// Package instructionset implements the 32-opcode instruction set, its
// dispatch table, and template search (spec §4.2). Grounded on the
// teacher's internal/bytecode.OpCode enum idiom (a byte-sized iota type)
// rather than copied from it: the teacher's 90-odd stack-language opcodes
// have no overlap with Tierra's fixed 32.
package instructionset

// OpCode is a 5-bit opcode (spec §3: "the low 5 bits are an opcode").
type OpCode byte

const (
	Nop0   OpCode = iota // 0: no-op (template bit)
	Nop1                 // 1: no-op (template bit)
	Not0                 // 2: cx ^= 1
	Shl                  // 3: cx <<= 1
	Zero                 // 4: cx = 0
	Ifz                  // 5: execute next only if cx == 0, else skip one
	SubCAB               // 6: cx = ax - bx
	SubAAC               // 7: ax = ax - cx
	IncA                 // 8: ax++
	IncB                 // 9: bx++
	DecC                 // 10: cx--
	IncC                 // 11: cx++
	PushA                // 12
	PushB                // 13
	PushC                // 14
	PushD                // 15
	PopA                 // 16
	PopB                 // 17
	PopC                 // 18
	PopD                 // 19
	Jmpo                 // 20: outward template search, ip = match addr
	Jmpb                 // 21: backward template search, ip = match addr
	Call                 // 22: push return addr, ip = match addr
	Ret                  // 23: ip = pop
	MovDC                // 24: dx = cx
	MovBA                // 25: bx = ax
	Movii                // 26: soup[ax] = soup[bx]
	Adro                 // 27: outward; ax = match addr, cx = template length
	Adrb                 // 28: backward
	Adrf                 // 29: forward
	Mal                  // 30: allocate cx bytes for daughter
	Divide               // 31: attempt reproduction
)

// NumOpcodes is the fixed size of the instruction set (spec §2: "32-
// instruction virtual CPU").
const NumOpcodes = 32

// Name returns the mnemonic for op, as used by the (out-of-scope) genome
// text format (spec §6) and by DataLog/debug output.
func (op OpCode) Name() string {
	names := [NumOpcodes]string{
		"nop0", "nop1", "not0", "shl", "zero", "ifz", "subCAB", "subAAC",
		"incA", "incB", "decC", "incC", "pushA", "pushB", "pushC", "pushD",
		"popA", "popB", "popC", "popD", "jmpo", "jmpb", "call", "ret",
		"movDC", "movBA", "movii", "adro", "adrb", "adrf", "mal", "divide",
	}
	if int(op) < 0 || int(op) >= NumOpcodes {
		return "?"
	}
	return names[op]
}

// isTemplateUsing reports whether op consumes a trailing nop0/nop1 run as
// its template (spec §4.2 "Template-consuming instructions").
func isTemplateUsing(op OpCode) bool {
	switch op {
	case Jmpo, Jmpb, Call, Adro, Adrb, Adrf:
		return true
	default:
		return false
	}
}
