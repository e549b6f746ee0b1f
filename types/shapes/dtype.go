package shapes

import (
	"strings"

	"github.com/pkg/errors"
)

// DType enumerates the element kinds a tensor may carry. The set is closed:
// the checker never invents new element kinds, and the IR only ever refers to
// one of these values.
type DType int32

const (
	InvalidDType DType = iota
	Int8
	Int32
	Int64
	Uint8
	Float16
	BFloat16
	Float32
	Float64
)

// Aliases commonly used when writing shapes by hand.
const (
	I32 = Int32
	I64 = Int64
	F32 = Float32
	F64 = Float64
)

var dtypeNames = map[DType]string{
	InvalidDType: "invalid",
	Int8:         "int8",
	Int32:        "int32",
	Int64:        "int64",
	Uint8:        "uint8",
	Float16:      "float16",
	BFloat16:     "bfloat16",
	Float32:      "float32",
	Float64:      "float64",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "invalid"
}

// DTypeFromString converts a dtype name as it appears in a `tensor[...]`
// annotation back to its DType. It returns an error for names outside the
// closed set.
func DTypeFromString(name string) (DType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for dtype, dtypeName := range dtypeNames {
		if dtype != InvalidDType && dtypeName == lower {
			return dtype, nil
		}
	}
	return InvalidDType, errors.Errorf("unknown dtype %q", name)
}

// IsFloat returns whether dtype is one of the floating point kinds.
func (dtype DType) IsFloat() bool {
	switch dtype {
	case Float16, BFloat16, Float32, Float64:
		return true
	}
	return false
}

// IsInt returns whether dtype is one of the integer kinds.
func (dtype DType) IsInt() bool {
	switch dtype {
	case Int8, Int32, Int64, Uint8:
		return true
	}
	return false
}

// Memory returns the size in bytes of one element of the given dtype.
func (dtype DType) Memory() uintptr {
	switch dtype {
	case Int8, Uint8:
		return 1
	case Float16, BFloat16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}
