package model

import (
	"fmt"
	"sort"
)

// FeatureImportance pairs a feature name with its absolute importance.
type FeatureImportance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// RankedImportances lists the artifact features by descending importance.
// Ties keep the training feature order.
func RankedImportances(a *Artifact) ([]*FeatureImportance, error) {
	imp, err := Importances(a.Model)
	if err != nil {
		return nil, err
	}
	if len(imp) != len(a.Features) {
		return nil, fmt.Errorf("importance vector has %d values for %d features", len(imp), len(a.Features))
	}

	list := make([]*FeatureImportance, len(imp))
	for i, v := range imp {
		list[i] = &FeatureImportance{Feature: a.Features[i], Importance: v}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Importance > list[j].Importance
	})
	return list, nil
}
