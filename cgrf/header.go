package cgrf

// Magic is the 4-byte ASCII magic identifying a CGRF buffer (spec §4.1,
// §6).
var Magic = [4]byte{'C', 'G', 'R', 'F'}

// Version is the only wire version this package produces or accepts.
const Version uint16 = 1

// Header is the fixed CGRF buffer header: magic, version, flags,
// node_count, root_index, little-endian (spec §4.1).
type Header struct {
	Version   uint16
	Flags     uint16
	NodeCount uint32
	RootIndex uint32
}

// HeaderSize is the encoded size of Header, including the magic.
const HeaderSize = 4 + 2 + 2 + 4 + 4

// Node kind bytes (spec §4.1).
const (
	KindBool    byte = 0x01
	KindS32     byte = 0x02
	KindS64     byte = 0x03
	KindF32     byte = 0x04
	KindF64     byte = 0x05
	KindString  byte = 0x06
	KindList    byte = 0x07
	KindVariant byte = 0x08
	KindRecord  byte = 0x09
	KindOption  byte = 0x0A
	KindTuple   byte = 0x0B
	KindU8      byte = 0x0C
	KindU16     byte = 0x0D
	KindU32     byte = 0x0E
	KindU64     byte = 0x0F
	KindS8      byte = 0x10
	KindS16     byte = 0x11
	KindChar    byte = 0x12
	KindFlags   byte = 0x13
)

// nodeHeaderSize is kind:u8 | flags:u8 | reserved:u16 | payload_len:u32.
const nodeHeaderSize = 1 + 1 + 2 + 4

// Limits bounds every dimension of a CGRF buffer, enforced during both
// encode and decode (spec §4.1 "Limits").
type Limits struct {
	MaxBufferSize   int
	MaxNodes        int
	MaxStringBytes  int
	MaxArity        int
	MaxRecursionDepth int
}

// DefaultLimits returns the spec's default limits table.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:     16 * 1024 * 1024,
		MaxNodes:          1_000_000,
		MaxStringBytes:    8 * 1024 * 1024,
		MaxArity:          1_000_000,
		MaxRecursionDepth: 10_000,
	}
}
