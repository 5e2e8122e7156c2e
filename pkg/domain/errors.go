package domain

import "errors"

// Sentinel errors for the error-kind taxonomy in SPEC_FULL.md §7.
// Callers classify a failure with errors.Is against these, the same
// wrapped-sentinel discipline the teacher uses for e.g. redis.Nil checks
// in pkg/storage/redis.go.
var (
	// ErrUnsupportedFeature is returned when a model requests a feature
	// name the resolver cannot map to a weather, time, or plant-context
	// value. Not fatal: the pipeline skips the model for this cycle.
	ErrUnsupportedFeature = errors.New("unsupported feature")

	// ErrArtifactDecode is returned when an opaque model artifact fails
	// to deserialize. Not fatal: the state cache skips the model.
	ErrArtifactDecode = errors.New("artifact decode failed")

	// ErrInvariant marks an internal contract violation (e.g. mismatched
	// predicted/actual lengths in metric computation). Fatal to the
	// calling request; handlers translate it to a 500.
	ErrInvariant = errors.New("invariant violated")

	// ErrNotFound marks a missing plant, model, or snapshot lookup.
	ErrNotFound = errors.New("not found")

	// ErrNotInitialized marks a dependency that has not finished
	// starting up (e.g. a request arriving before the first refresh).
	ErrNotInitialized = errors.New("service not initialized")
)
