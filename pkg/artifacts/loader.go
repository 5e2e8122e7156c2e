// Package artifacts decodes opaque ML model artifacts into something the
// prediction pipeline can call: a WebAssembly module running under its
// own isolated wazero runtime, the same one-runtime-per-execution
// structure tartarus.WasmRuntime uses for its sandboxes, just
// specialized to a single exported "predict" call instead of a process
// launch.
package artifacts

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// Loader decodes raw artifact bytes into a runnable Model. Every Decode
// call gets its own wazero.Runtime, so one plant's malformed or hostile
// artifact can never corrupt another's memory or exported state.
type Loader struct {
	log *slog.Logger
}

// New creates a Loader.
func New(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{log: log}
}

// Decode builds a Model from raw artifact bytes, dispatching on the
// model's FileType. joblib, pkl, and pickle artifacts are a single
// compiled WASM module; zip artifacts carry a model module plus a
// companion module that the model imports from by name.
func (l *Loader) Decode(ctx context.Context, meta domain.ModelMetadata, raw []byte) (*Model, error) {
	switch meta.FileType {
	case domain.FileTypeJoblib, domain.FileTypePKL, domain.FileTypePickle:
		return l.decodeSingle(ctx, meta, raw)
	case domain.FileTypeZip:
		return l.decodeZip(ctx, meta, raw)
	default:
		return nil, fmt.Errorf("%w: unknown file type %q for model %d", domain.ErrArtifactDecode, meta.FileType, meta.ID)
	}
}

func (l *Loader) decodeSingle(ctx context.Context, meta domain.ModelMetadata, wasmBytes []byte) (*Model, error) {
	rt := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate WASI for model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	mod, err := rt.Instantiate(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	model, err := newModel(rt, mod, meta)
	if err != nil {
		mod.Close(ctx)
		rt.Close(ctx)
		return nil, err
	}

	l.log.Debug("decoded artifact", "model_id", meta.ID, "file_type", meta.FileType)
	return model, nil
}

// decodeZip splits the archive into model.wasm and companion.wasm,
// compiles the companion under a fixed module name first, then
// instantiates the model module so its imports resolve against the
// companion's exports — the "named factory" the companion provides.
func (l *Loader) decodeZip(ctx context.Context, meta domain.ModelMetadata, zipBytes []byte) (*Model, error) {
	modelBytes, companionBytes, err := splitZipArtifact(zipBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	rt := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate WASI for model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	companionCompiled, err := rt.CompileModule(ctx, companionBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: compile companion for model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	companionMod, err := rt.InstantiateModule(ctx, companionCompiled,
		wazero.NewModuleConfig().WithName("companion"))
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate companion for model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	mod, err := rt.InstantiateWithConfig(ctx, modelBytes, wazero.NewModuleConfig().WithName("model"))
	if err != nil {
		companionMod.Close(ctx)
		rt.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate model %d: %v", domain.ErrArtifactDecode, meta.ID, err)
	}

	model, err := newModel(rt, mod, meta)
	if err != nil {
		mod.Close(ctx)
		companionMod.Close(ctx)
		rt.Close(ctx)
		return nil, err
	}
	model.companion = companionMod

	l.log.Debug("decoded zip artifact", "model_id", meta.ID)
	return model, nil
}

// splitZipArtifact extracts model.wasm and companion.wasm from an
// in-memory zip archive.
func splitZipArtifact(zipBytes []byte) (model, companion []byte, err error) {
	r, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, nil, fmt.Errorf("open zip: %w", err)
	}

	for _, f := range r.File {
		switch f.Name {
		case "model.wasm":
			model, err = readZipFile(f)
		case "companion.wasm":
			companion, err = readZipFile(f)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	if model == nil {
		return nil, nil, fmt.Errorf("zip artifact missing model.wasm")
	}
	if companion == nil {
		return nil, nil, fmt.Errorf("zip artifact missing companion.wasm")
	}
	return model, companion, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s in zip: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s in zip: %w", f.Name, err)
	}
	return data, nil
}
