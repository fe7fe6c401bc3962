package models

import (
	"fmt"
	"math"
)

// TreeNode is one node of a binary decision tree. Internal nodes send
// x[Feature] <= Threshold to Left and everything else to Right. Leaves carry
// the Dropout probability observed at training time.
type TreeNode struct {
	Leaf      bool    `yaml:"leaf,omitempty"`
	Feature   int     `yaml:"feature,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Left      int     `yaml:"left,omitempty"`
	Right     int     `yaml:"right,omitempty"`
	Value     float64 `yaml:"value,omitempty"`
}

// Tree is a flattened decision tree; node 0 is the root.
type Tree struct {
	Nodes []TreeNode `yaml:"nodes"`
}

// Forest is a tree ensemble whose probability is the mean of its trees'
// leaf probabilities.
type Forest struct {
	columns     []string
	trees       []Tree
	importances []float64
}

// NewForest validates the trees and importance weights. Children must come
// after their parent so that traversal always terminates.
func NewForest(columns []string, trees []Tree, importances []float64) (*Forest, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("forest has no columns")
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("forest has no trees")
	}
	if len(importances) != len(columns) {
		return nil, fmt.Errorf("forest has %d importances for %d columns", len(importances), len(columns))
	}
	for i, w := range importances {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("importance %d (%s) must be finite and non-negative", i, columns[i])
		}
	}

	for ti, tree := range trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Leaf {
				if n.Value < 0 || n.Value > 1 || math.IsNaN(n.Value) {
					return nil, fmt.Errorf("tree %d node %d: leaf value %v outside [0,1]", ti, ni, n.Value)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(columns) {
				return nil, fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return nil, fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}

	cp := make([]Tree, len(trees))
	for i, t := range trees {
		cp[i] = Tree{Nodes: append([]TreeNode(nil), t.Nodes...)}
	}

	return &Forest{
		columns:     append([]string(nil), columns...),
		trees:       cp,
		importances: append([]float64(nil), importances...),
	}, nil
}

func (f *Forest) Kind() Kind { return KindForest }

func (f *Forest) Columns() []string { return append([]string(nil), f.columns...) }

// NumTrees returns the ensemble size.
func (f *Forest) NumTrees() int { return len(f.trees) }

// PredictProba averages the leaf probabilities of every tree.
func (f *Forest) PredictProba(x []float64) (float64, error) {
	if err := checkWidth(x, len(f.columns)); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += t.leafValue(x)
	}
	return sum / float64(len(f.trees)), nil
}

// AttributionWeights returns the importance weights.
func (f *Forest) AttributionWeights() []Weight {
	return weightsFor(f.columns, f.importances)
}

func (t Tree) leafValue(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
