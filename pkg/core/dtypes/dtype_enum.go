// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum of the element types of graph values.
//
// The numeric values are a 1:1 mapping of ONNX's TensorProto.DataType, so that values read from
// exported models can be converted with a plain cast.
type DType int32

const (
	// InvalidDType (TensorProto.UNDEFINED) is the zero value, used when an element type is unknown.
	InvalidDType DType = 0

	// Float32 (TensorProto.FLOAT).
	Float32 DType = 1

	// Uint8 (TensorProto.UINT8) is the usual activation type of quantized graphs.
	Uint8 DType = 2

	// Int8 (TensorProto.INT8) is used for quantized weights, and activations on some accelerators.
	Int8 DType = 3

	// Uint16 (TensorProto.UINT16).
	Uint16 DType = 4

	// Int16 (TensorProto.INT16).
	Int16 DType = 5

	// Int32 (TensorProto.INT32) is the type of quantized biases.
	Int32 DType = 6

	// Int64 (TensorProto.INT64).
	Int64 DType = 7

	// String (TensorProto.STRING).
	String DType = 8

	// Bool (TensorProto.BOOL).
	Bool DType = 9

	// Float16 (TensorProto.FLOAT16).
	Float16 DType = 10

	// Float64 (TensorProto.DOUBLE).
	Float64 DType = 11

	// Uint32 (TensorProto.UINT32).
	Uint32 DType = 12

	// Uint64 (TensorProto.UINT64).
	Uint64 DType = 13

	// Complex64 (TensorProto.COMPLEX64).
	Complex64 DType = 14

	// Complex128 (TensorProto.COMPLEX128).
	Complex128 DType = 15

	// BFloat16 (TensorProto.BFLOAT16).
	BFloat16 DType = 16
)

// Aliases used by XLA and by most quantization tools.
const (
	U8   = Uint8
	S8   = Int8
	U16  = Uint16
	S16  = Int16
	S32  = Int32
	S64  = Int64
	U32  = Uint32
	U64  = Uint64
	F16  = Float16
	BF16 = BFloat16
	F32  = Float32
	F64  = Float64
	C64  = Complex64
	C128 = Complex128
)

var dtypeNames = [...]string{
	InvalidDType: "InvalidDType",
	Float32:      "Float32",
	Uint8:        "Uint8",
	Int8:         "Int8",
	Uint16:       "Uint16",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	String:       "String",
	Bool:         "Bool",
	Float16:      "Float16",
	Float64:      "Float64",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Complex64:    "Complex64",
	Complex128:   "Complex128",
	BFloat16:     "BFloat16",
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// Lower-case versions of all keys are added at initialization.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Undefined":    InvalidDType,
	"Float32":      Float32,
	"Float":        Float32,
	"F32":          Float32,
	"Uint8":        Uint8,
	"U8":           Uint8,
	"Int8":         Int8,
	"S8":           Int8,
	"I8":           Int8,
	"Uint16":       Uint16,
	"U16":          Uint16,
	"Int16":        Int16,
	"S16":          Int16,
	"I16":          Int16,
	"Int32":        Int32,
	"S32":          Int32,
	"I32":          Int32,
	"Int64":        Int64,
	"S64":          Int64,
	"I64":          Int64,
	"String":       String,
	"Bool":         Bool,
	"Pred":         Bool,
	"Float16":      Float16,
	"F16":          Float16,
	"Float64":      Float64,
	"Double":       Float64,
	"F64":          Float64,
	"Uint32":       Uint32,
	"U32":          Uint32,
	"Uint64":       Uint64,
	"U64":          Uint64,
	"Complex64":    Complex64,
	"C64":          Complex64,
	"Complex128":   Complex128,
	"C128":         Complex128,
	"BFloat16":     BFloat16,
	"BF16":         BFloat16,
}
