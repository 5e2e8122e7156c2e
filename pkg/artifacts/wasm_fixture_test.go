package artifacts

import (
	"context"
	"testing"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// This file hand-assembles the smallest possible WebAssembly module that
// satisfies the alloc/predict/dealloc contract wasm.go calls against, byte
// by byte per the WASM binary format's own encoding rules — no compiler
// involved. It exists so Loader.Decode's wazero instantiation and
// Model.Predict's alloc/write/call/read ABI are exercised against a real
// module somewhere in the tree, rather than only ever assumed correct.

const (
	valI32 = 0x7f
	valF64 = 0x7c
)

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func wasmSection(id byte, content []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint32(len(content)))...)
	return append(out, content...)
}

// wasmVec prefixes items with their count, the shape every WASM section
// (types, funcs, exports, code bodies, ...) uses for its top-level list.
func wasmVec(items ...[]byte) []byte {
	out := uleb128(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmName(s string) []byte {
	return append(uleb128(uint32(len(s))), []byte(s)...)
}

func wasmFuncType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb128(uint32(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb128(uint32(len(results)))...)
	out = append(out, results...)
	return out
}

func wasmOp(opcode byte, operands ...byte) []byte {
	return append([]byte{opcode}, operands...)
}

// wasmFuncBody wraps instruction bytes with an empty local-declarations
// vector and the code entry's own length prefix.
func wasmFuncBody(instrs ...[]byte) []byte {
	body := uleb128(0) // no additional local declarations
	for _, in := range instrs {
		body = append(body, in...)
	}
	return append(uleb128(uint32(len(body))), body...)
}

// buildMinimalPredictModule builds a module exporting "memory", "alloc",
// "dealloc" and "predict":
//   - alloc(len i32) -> i32 always returns a fixed scratch pointer (1024),
//     ignoring len — there is exactly one in-flight call per Model.Predict
//     invocation, so a real bump allocator buys nothing here.
//   - dealloc(ptr i32, len i32) is a no-op.
//   - predict(ptr i32, rows i32, cols i32) -> i32 reads two f64 values at
//     ptr+0 and ptr+8, sums them, writes the sum at a second fixed pointer
//     (2048), and returns that pointer — enough to drive wasm.go's real
//     alloc -> write -> call -> read round trip against a two-feature row.
func buildMinimalPredictModule() []byte {
	const scratchOut = 2048

	allocType := wasmFuncType([]byte{valI32}, []byte{valI32})
	deallocType := wasmFuncType([]byte{valI32, valI32}, nil)
	predictType := wasmFuncType([]byte{valI32, valI32, valI32}, []byte{valI32})

	typeSec := wasmSection(1, wasmVec(allocType, deallocType, predictType))
	funcSec := wasmSection(3, wasmVec(uleb128(0), uleb128(1), uleb128(2)))
	memSec := wasmSection(5, wasmVec(append([]byte{0x00}, uleb128(1)...)))

	exportSec := wasmSection(7, wasmVec(
		append(wasmName("memory"), 0x02, 0x00),
		append(wasmName("alloc"), 0x00, 0x00),
		append(wasmName("dealloc"), 0x00, 0x01),
		append(wasmName("predict"), 0x00, 0x02),
	))

	allocBody := wasmFuncBody(wasmOp(0x41, sleb128(1024)...), []byte{0x0b})
	deallocBody := wasmFuncBody([]byte{0x0b})
	predictBody := wasmFuncBody(
		wasmOp(0x41, sleb128(scratchOut)...), // i32.const scratchOut (store address)
		wasmOp(0x20, uleb128(0)...),          // local.get 0 (ptr)
		wasmOp(0x2b, 0x03, 0x00),             // f64.load offset=0
		wasmOp(0x20, uleb128(0)...),          // local.get 0 (ptr)
		wasmOp(0x2b, 0x03, 0x08),             // f64.load offset=8
		[]byte{0xa0},                         // f64.add
		wasmOp(0x39, 0x03, 0x00),             // f64.store offset=0
		wasmOp(0x41, sleb128(scratchOut)...), // i32.const scratchOut (return value)
		[]byte{0x0b},                         // end
	)
	codeSec := wasmSection(10, wasmVec(allocBody, deallocBody, predictBody))

	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00} // \0asm, version 1
	module = append(module, typeSec...)
	module = append(module, funcSec...)
	module = append(module, memSec...)
	module = append(module, exportSec...)
	module = append(module, codeSec...)
	return module
}

func TestLoader_DecodeAndPredict(t *testing.T) {
	wasmBytes := buildMinimalPredictModule()
	meta := domain.ModelMetadata{ID: 7, FileType: domain.FileTypeJoblib, Features: []string{"a", "b"}}

	l := New(nil)
	model, err := l.Decode(context.Background(), meta, wasmBytes)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer model.Close(context.Background())

	got, err := model.Predict(context.Background(), []float64{3, 4})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got != 7 {
		t.Errorf("Predict([3,4]) = %v, want 7", got)
	}

	got2, err := model.Predict(context.Background(), []float64{10, -2.5})
	if err != nil {
		t.Fatalf("Predict (second call): %v", err)
	}
	if got2 != 7.5 {
		t.Errorf("Predict([10,-2.5]) = %v, want 7.5", got2)
	}
}
