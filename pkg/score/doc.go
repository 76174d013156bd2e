// Package score implements the churn scoring pipeline: feature assembly,
// classifier inference and top-driver attribution over a read-only
// [model.Artifact]. A [Pipeline] is immutable once built and safe for
// concurrent use; the batch and single-record entry points share the
// same assembly, inference and attribution path.
//
// Top-driver attribution is a heuristic, not a causal explanation: each
// feature contributes importance[i] * value[i] on the raw, unscaled
// feature value, so large numeric features can dominate regardless of
// their true influence on the prediction.
package score
