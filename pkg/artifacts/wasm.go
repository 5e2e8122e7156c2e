package artifacts

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// predictExport, allocExport, and deallocExport are the fixed names every
// compiled artifact must export. The ABI is a flat row-major f64 matrix
// in, a flat f64 vector out: predict(ptr, rows, cols) -> ptr.
const (
	predictExport = "predict"
	allocExport   = "alloc"
	deallocExport = "dealloc"
)

// Model is one decoded, runnable artifact. It owns the wazero runtime and
// module instance(s) backing it and must be closed when no longer needed.
type Model struct {
	meta      domain.ModelMetadata
	runtime   wazero.Runtime
	module    api.Module
	companion api.Module // non-nil only for zip artifacts

	predict api.Function
	alloc   api.Function
	dealloc api.Function

	mu sync.Mutex
}

func newModel(rt wazero.Runtime, mod api.Module, meta domain.ModelMetadata) (*Model, error) {
	predict := mod.ExportedFunction(predictExport)
	if predict == nil {
		return nil, fmt.Errorf("%w: model %d missing export %q", domain.ErrArtifactDecode, meta.ID, predictExport)
	}
	alloc := mod.ExportedFunction(allocExport)
	if alloc == nil {
		return nil, fmt.Errorf("%w: model %d missing export %q", domain.ErrArtifactDecode, meta.ID, allocExport)
	}
	dealloc := mod.ExportedFunction(deallocExport)
	if dealloc == nil {
		return nil, fmt.Errorf("%w: model %d missing export %q", domain.ErrArtifactDecode, meta.ID, deallocExport)
	}

	return &Model{
		meta:    meta,
		runtime: rt,
		module:  mod,
		predict: predict,
		alloc:   alloc,
		dealloc: dealloc,
	}, nil
}

// Predict runs inference over one feature row in the order meta.Features
// defines, returning a single predicted power value.
func (m *Model) Predict(ctx context.Context, features []float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cols := len(features)
	byteLen := uint64(cols) * 8

	allocResult, err := m.alloc.Call(ctx, byteLen)
	if err != nil {
		return 0, fmt.Errorf("%w: model %d alloc: %v", domain.ErrArtifactDecode, m.meta.ID, err)
	}
	inPtr := allocResult[0]
	defer m.dealloc.Call(ctx, inPtr, byteLen)

	mem := m.module.Memory()
	for i, v := range features {
		if !mem.WriteFloat64Le(uint32(inPtr)+uint32(i*8), v) {
			return 0, fmt.Errorf("%w: model %d: write feature %d out of memory bounds", domain.ErrArtifactDecode, m.meta.ID, i)
		}
	}

	results, err := m.predict.Call(ctx, inPtr, 1, uint64(cols))
	if err != nil {
		return 0, fmt.Errorf("%w: model %d predict call: %v", domain.ErrArtifactDecode, m.meta.ID, err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: model %d predict returned no result", domain.ErrArtifactDecode, m.meta.ID)
	}

	outPtr := uint32(results[0])
	value, ok := mem.ReadFloat64Le(outPtr)
	if !ok {
		return 0, fmt.Errorf("%w: model %d: read prediction out of memory bounds", domain.ErrArtifactDecode, m.meta.ID)
	}

	return value, nil
}

// Close releases the module(s) and the runtime backing this model.
func (m *Model) Close(ctx context.Context) error {
	var firstErr error
	if m.companion != nil {
		if err := m.companion.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.module.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.runtime.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
