package dex

// Format identifies a Dalvik instruction encoding. The names follow the
// dexdump convention: first digit is the size in 16-bit code units, second
// is the register count, and the suffix describes the extra operand
// (n=nibble literal, s/h=16-bit literal, c=pool reference, t=branch target,
// i=32-bit literal, l=64-bit literal, x=none).
type Format uint8

const (
	fmt10x Format = iota
	fmt12x
	fmt11n
	fmt11x
	fmt10t
	fmt20t
	fmt22x
	fmt21t
	fmt21s
	fmt21h
	fmt21c
	fmt23x
	fmt22b
	fmt22t
	fmt22s
	fmt22c
	fmt32x
	fmt30t
	fmt31t
	fmt31i
	fmt31c
	fmt35c
	fmt3rc
	fmt51l
)

// Opcode holds one row of the 256-entry instruction table. Units is the
// instruction length in 16-bit code units.
type Opcode struct {
	Name   string
	Format Format
	Units  int
}

func unused(op byte) Opcode {
	const hex = "0123456789abcdef"
	return Opcode{"unused-" + string([]byte{hex[op>>4], hex[op&0xF]}), fmt10x, 1}
}

var opcodes = [256]Opcode{
	0x00: {"nop", fmt10x, 1},
	0x01: {"move", fmt12x, 1},
	0x02: {"move/from16", fmt22x, 2},
	0x03: {"move/16", fmt32x, 3},
	0x04: {"move-wide", fmt12x, 1},
	0x05: {"move-wide/from16", fmt22x, 2},
	0x06: {"move-wide/16", fmt32x, 3},
	0x07: {"move-object", fmt12x, 1},
	0x08: {"move-object/from16", fmt22x, 2},
	0x09: {"move-object/16", fmt32x, 3},
	0x0A: {"move-result", fmt11x, 1},
	0x0B: {"move-result-wide", fmt11x, 1},
	0x0C: {"move-result-object", fmt11x, 1},
	0x0D: {"move-exception", fmt11x, 1},
	0x0E: {"return-void", fmt10x, 1},
	0x0F: {"return", fmt11x, 1},
	0x10: {"return-wide", fmt11x, 1},
	0x11: {"return-object", fmt11x, 1},
	0x12: {"const/4", fmt11n, 1},
	0x13: {"const/16", fmt21s, 2},
	0x14: {"const", fmt31i, 3},
	0x15: {"const/high16", fmt21h, 2},
	0x16: {"const-wide/16", fmt21s, 2},
	0x17: {"const-wide/32", fmt31i, 3},
	0x18: {"const-wide", fmt51l, 5},
	0x19: {"const-wide/high16", fmt21h, 2},
	0x1A: {"const-string", fmt21c, 2},
	0x1B: {"const-string/jumbo", fmt31c, 3},
	0x1C: {"const-class", fmt21c, 2},
	0x1D: {"monitor-enter", fmt11x, 1},
	0x1E: {"monitor-exit", fmt11x, 1},
	0x1F: {"check-cast", fmt21c, 2},
	0x20: {"instance-of", fmt22c, 2},
	0x21: {"array-length", fmt12x, 1},
	0x22: {"new-instance", fmt21c, 2},
	0x23: {"new-array", fmt22c, 2},
	0x24: {"filled-new-array", fmt35c, 3},
	0x25: {"filled-new-array/range", fmt3rc, 3},
	0x26: {"fill-array-data", fmt31t, 3},
	0x27: {"throw", fmt11x, 1},
	0x28: {"goto", fmt10t, 1},
	0x29: {"goto/16", fmt20t, 2},
	0x2A: {"goto/32", fmt30t, 3},
	0x2B: {"packed-switch", fmt31t, 3},
	0x2C: {"sparse-switch", fmt31t, 3},
	0x2D: {"cmpl-float", fmt23x, 2},
	0x2E: {"cmpg-float", fmt23x, 2},
	0x2F: {"cmpl-double", fmt23x, 2},
	0x30: {"cmpg-double", fmt23x, 2},
	0x31: {"cmp-long", fmt23x, 2},
	0x32: {"if-eq", fmt22t, 2},
	0x33: {"if-ne", fmt22t, 2},
	0x34: {"if-lt", fmt22t, 2},
	0x35: {"if-ge", fmt22t, 2},
	0x36: {"if-gt", fmt22t, 2},
	0x37: {"if-le", fmt22t, 2},
	0x38: {"if-eqz", fmt21t, 2},
	0x39: {"if-nez", fmt21t, 2},
	0x3A: {"if-ltz", fmt21t, 2},
	0x3B: {"if-gez", fmt21t, 2},
	0x3C: {"if-gtz", fmt21t, 2},
	0x3D: {"if-lez", fmt21t, 2},
	0x3E: unused(0x3E),
	0x3F: unused(0x3F),
	0x40: unused(0x40),
	0x41: unused(0x41),
	0x42: unused(0x42),
	0x43: unused(0x43),
	0x44: {"aget", fmt23x, 2},
	0x45: {"aget-wide", fmt23x, 2},
	0x46: {"aget-object", fmt23x, 2},
	0x47: {"aget-boolean", fmt23x, 2},
	0x48: {"aget-byte", fmt23x, 2},
	0x49: {"aget-char", fmt23x, 2},
	0x4A: {"aget-short", fmt23x, 2},
	0x4B: {"aput", fmt23x, 2},
	0x4C: {"aput-wide", fmt23x, 2},
	0x4D: {"aput-object", fmt23x, 2},
	0x4E: {"aput-boolean", fmt23x, 2},
	0x4F: {"aput-byte", fmt23x, 2},
	0x50: {"aput-char", fmt23x, 2},
	0x51: {"aput-short", fmt23x, 2},
	0x52: {"iget", fmt22c, 2},
	0x53: {"iget-wide", fmt22c, 2},
	0x54: {"iget-object", fmt22c, 2},
	0x55: {"iget-boolean", fmt22c, 2},
	0x56: {"iget-byte", fmt22c, 2},
	0x57: {"iget-char", fmt22c, 2},
	0x58: {"iget-short", fmt22c, 2},
	0x59: {"iput", fmt22c, 2},
	0x5A: {"iput-wide", fmt22c, 2},
	0x5B: {"iput-object", fmt22c, 2},
	0x5C: {"iput-boolean", fmt22c, 2},
	0x5D: {"iput-byte", fmt22c, 2},
	0x5E: {"iput-char", fmt22c, 2},
	0x5F: {"iput-short", fmt22c, 2},
	0x60: {"sget", fmt21c, 2},
	0x61: {"sget-wide", fmt21c, 2},
	0x62: {"sget-object", fmt21c, 2},
	0x63: {"sget-boolean", fmt21c, 2},
	0x64: {"sget-byte", fmt21c, 2},
	0x65: {"sget-char", fmt21c, 2},
	0x66: {"sget-short", fmt21c, 2},
	0x67: {"sput", fmt21c, 2},
	0x68: {"sput-wide", fmt21c, 2},
	0x69: {"sput-object", fmt21c, 2},
	0x6A: {"sput-boolean", fmt21c, 2},
	0x6B: {"sput-byte", fmt21c, 2},
	0x6C: {"sput-char", fmt21c, 2},
	0x6D: {"sput-short", fmt21c, 2},
	0x6E: {"invoke-virtual", fmt35c, 3},
	0x6F: {"invoke-super", fmt35c, 3},
	0x70: {"invoke-direct", fmt35c, 3},
	0x71: {"invoke-static", fmt35c, 3},
	0x72: {"invoke-interface", fmt35c, 3},
	0x73: unused(0x73),
	0x74: {"invoke-virtual/range", fmt3rc, 3},
	0x75: {"invoke-super/range", fmt3rc, 3},
	0x76: {"invoke-direct/range", fmt3rc, 3},
	0x77: {"invoke-static/range", fmt3rc, 3},
	0x78: {"invoke-interface/range", fmt3rc, 3},
	0x79: unused(0x79),
	0x7A: unused(0x7A),
	0x7B: {"neg-int", fmt12x, 1},
	0x7C: {"not-int", fmt12x, 1},
	0x7D: {"neg-long", fmt12x, 1},
	0x7E: {"not-long", fmt12x, 1},
	0x7F: {"neg-float", fmt12x, 1},
	0x80: {"neg-double", fmt12x, 1},
	0x81: {"int-to-long", fmt12x, 1},
	0x82: {"int-to-float", fmt12x, 1},
	0x83: {"int-to-double", fmt12x, 1},
	0x84: {"long-to-int", fmt12x, 1},
	0x85: {"long-to-float", fmt12x, 1},
	0x86: {"long-to-double", fmt12x, 1},
	0x87: {"float-to-int", fmt12x, 1},
	0x88: {"float-to-long", fmt12x, 1},
	0x89: {"float-to-double", fmt12x, 1},
	0x8A: {"double-to-int", fmt12x, 1},
	0x8B: {"double-to-long", fmt12x, 1},
	0x8C: {"double-to-float", fmt12x, 1},
	0x8D: {"int-to-byte", fmt12x, 1},
	0x8E: {"int-to-char", fmt12x, 1},
	0x8F: {"int-to-short", fmt12x, 1},
	0x90: {"add-int", fmt23x, 2},
	0x91: {"sub-int", fmt23x, 2},
	0x92: {"mul-int", fmt23x, 2},
	0x93: {"div-int", fmt23x, 2},
	0x94: {"rem-int", fmt23x, 2},
	0x95: {"and-int", fmt23x, 2},
	0x96: {"or-int", fmt23x, 2},
	0x97: {"xor-int", fmt23x, 2},
	0x98: {"shl-int", fmt23x, 2},
	0x99: {"shr-int", fmt23x, 2},
	0x9A: {"ushr-int", fmt23x, 2},
	0x9B: {"add-long", fmt23x, 2},
	0x9C: {"sub-long", fmt23x, 2},
	0x9D: {"mul-long", fmt23x, 2},
	0x9E: {"div-long", fmt23x, 2},
	0x9F: {"rem-long", fmt23x, 2},
	0xA0: {"and-long", fmt23x, 2},
	0xA1: {"or-long", fmt23x, 2},
	0xA2: {"xor-long", fmt23x, 2},
	0xA3: {"shl-long", fmt23x, 2},
	0xA4: {"shr-long", fmt23x, 2},
	0xA5: {"ushr-long", fmt23x, 2},
	0xA6: {"add-float", fmt23x, 2},
	0xA7: {"sub-float", fmt23x, 2},
	0xA8: {"mul-float", fmt23x, 2},
	0xA9: {"div-float", fmt23x, 2},
	0xAA: {"rem-float", fmt23x, 2},
	0xAB: {"add-double", fmt23x, 2},
	0xAC: {"sub-double", fmt23x, 2},
	0xAD: {"mul-double", fmt23x, 2},
	0xAE: {"div-double", fmt23x, 2},
	0xAF: {"rem-double", fmt23x, 2},
	0xB0: {"add-int/2addr", fmt12x, 1},
	0xB1: {"sub-int/2addr", fmt12x, 1},
	0xB2: {"mul-int/2addr", fmt12x, 1},
	0xB3: {"div-int/2addr", fmt12x, 1},
	0xB4: {"rem-int/2addr", fmt12x, 1},
	0xB5: {"and-int/2addr", fmt12x, 1},
	0xB6: {"or-int/2addr", fmt12x, 1},
	0xB7: {"xor-int/2addr", fmt12x, 1},
	0xB8: {"shl-int/2addr", fmt12x, 1},
	0xB9: {"shr-int/2addr", fmt12x, 1},
	0xBA: {"ushr-int/2addr", fmt12x, 1},
	0xBB: {"add-long/2addr", fmt12x, 1},
	0xBC: {"sub-long/2addr", fmt12x, 1},
	0xBD: {"mul-long/2addr", fmt12x, 1},
	0xBE: {"div-long/2addr", fmt12x, 1},
	0xBF: {"rem-long/2addr", fmt12x, 1},
	0xC0: {"and-long/2addr", fmt12x, 1},
	0xC1: {"or-long/2addr", fmt12x, 1},
	0xC2: {"xor-long/2addr", fmt12x, 1},
	0xC3: {"shl-long/2addr", fmt12x, 1},
	0xC4: {"shr-long/2addr", fmt12x, 1},
	0xC5: {"ushr-long/2addr", fmt12x, 1},
	0xC6: {"add-float/2addr", fmt12x, 1},
	0xC7: {"sub-float/2addr", fmt12x, 1},
	0xC8: {"mul-float/2addr", fmt12x, 1},
	0xC9: {"div-float/2addr", fmt12x, 1},
	0xCA: {"rem-float/2addr", fmt12x, 1},
	0xCB: {"add-double/2addr", fmt12x, 1},
	0xCC: {"sub-double/2addr", fmt12x, 1},
	0xCD: {"mul-double/2addr", fmt12x, 1},
	0xCE: {"div-double/2addr", fmt12x, 1},
	0xCF: {"rem-double/2addr", fmt12x, 1},
	0xD0: {"add-int/lit16", fmt22s, 2},
	0xD1: {"rsub-int", fmt22s, 2},
	0xD2: {"mul-int/lit16", fmt22s, 2},
	0xD3: {"div-int/lit16", fmt22s, 2},
	0xD4: {"rem-int/lit16", fmt22s, 2},
	0xD5: {"and-int/lit16", fmt22s, 2},
	0xD6: {"or-int/lit16", fmt22s, 2},
	0xD7: {"xor-int/lit16", fmt22s, 2},
	0xD8: {"add-int/lit8", fmt22b, 2},
	0xD9: {"rsub-int/lit8", fmt22b, 2},
	0xDA: {"mul-int/lit8", fmt22b, 2},
	0xDB: {"div-int/lit8", fmt22b, 2},
	0xDC: {"rem-int/lit8", fmt22b, 2},
	0xDD: {"and-int/lit8", fmt22b, 2},
	0xDE: {"or-int/lit8", fmt22b, 2},
	0xDF: {"xor-int/lit8", fmt22b, 2},
	0xE0: {"shl-int/lit8", fmt22b, 2},
	0xE1: {"shr-int/lit8", fmt22b, 2},
	0xE2: {"ushr-int/lit8", fmt22b, 2},
	0xE3: unused(0xE3),
	0xE4: unused(0xE4),
	0xE5: unused(0xE5),
	0xE6: unused(0xE6),
	0xE7: unused(0xE7),
	0xE8: unused(0xE8),
	0xE9: unused(0xE9),
	0xEA: unused(0xEA),
	0xEB: unused(0xEB),
	0xEC: unused(0xEC),
	0xED: unused(0xED),
	0xEE: unused(0xEE),
	0xEF: unused(0xEF),
	0xF0: unused(0xF0),
	0xF1: unused(0xF1),
	0xF2: unused(0xF2),
	0xF3: unused(0xF3),
	0xF4: unused(0xF4),
	0xF5: unused(0xF5),
	0xF6: unused(0xF6),
	0xF7: unused(0xF7),
	0xF8: unused(0xF8),
	0xF9: unused(0xF9),
	0xFA: unused(0xFA),
	0xFB: unused(0xFB),
	0xFC: unused(0xFC),
	0xFD: unused(0xFD),
	0xFE: unused(0xFE),
	0xFF: unused(0xFF),
}

// opcodeByName maps mnemonics back to opcode values for the assembler.
var opcodeByName = func() map[string]byte {
	m := make(map[string]byte, 256)
	for op := 0; op < 256; op++ {
		m[opcodes[op].Name] = byte(op)
	}
	return m
}()
