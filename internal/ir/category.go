package ir

// Category is the closed, flat type-category enumeration barrier dispatch
// keys on (spec.md §3's "Type category"). It is a flat tagged variant rather
// than an inheritance hierarchy, in the same spirit as obj/internal/asm.Op
// and obj/internal/asm.Loc: a small closed uint8 enumeration. Its only method
// is String; the ABI barrier suffix for each value is looked up by
// internal/barrier's suffix function.
type Category uint8

const (
	CategoryI8 Category = iota
	CategoryI16
	CategoryI32
	CategoryI64
	CategoryF32
	CategoryF64
	CategoryPointer
	CategoryV128I32
	CategoryV128I64
	CategoryV128F32
	CategoryV128F64
	CategoryV256I32
	CategoryV256I64
	CategoryV256F32
	CategoryV256F64

	// categoryCount is not a valid Category; it bounds the enumeration.
	categoryCount
)

// CategoryCount is the number of valid Category values, exported so
// internal/fakeir's loader can iterate every Category when parsing a
// category name without duplicating this enumeration's length.
const CategoryCount = int(categoryCount)

func (c Category) String() string {
	switch c {
	case CategoryI8:
		return "i8"
	case CategoryI16:
		return "i16"
	case CategoryI32:
		return "i32"
	case CategoryI64:
		return "i64"
	case CategoryF32:
		return "f32"
	case CategoryF64:
		return "f64"
	case CategoryPointer:
		return "pointer"
	case CategoryV128I32:
		return "v128_i32"
	case CategoryV128I64:
		return "v128_i64"
	case CategoryV128F32:
		return "v128_f32"
	case CategoryV128F64:
		return "v128_f64"
	case CategoryV256I32:
		return "v256_i32"
	case CategoryV256I64:
		return "v256_i64"
	case CategoryV256F32:
		return "v256_f32"
	case CategoryV256F64:
		return "v256_f64"
	default:
		return "unknown"
	}
}
