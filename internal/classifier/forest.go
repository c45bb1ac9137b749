package classifier

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// TreeNode is one node of a decision tree. Value holds the mean label
// of the training samples that reached the node; keeping it on internal
// nodes as well as leaves is what makes decision-path attribution
// possible at inference time.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
	IsLeaf    bool      `json:"is_leaf"`
}

// Forest is a bagged ensemble of decision trees over a fixed column
// schema. Importances are normalized impurity-gain scores per column.
type Forest struct {
	Trees       []*TreeNode `json:"trees"`
	Importances []float64   `json:"importances"`
}

// ForestConfig holds training hyperparameters.
type ForestConfig struct {
	TreeCount  int
	MaxDepth   int
	MinSamples int
	Seed       int64
}

// DefaultForestConfig returns the standard hyperparameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		TreeCount:  100,
		MaxDepth:   10,
		MinSamples: 2,
		Seed:       42,
	}
}

// TrainForest builds a random forest from the given rows and binary
// labels. Each tree sees a bootstrap sample and considers a random
// sqrt-sized feature subset at every split.
func TrainForest(rows [][]float64, labels []float64, cfg ForestConfig) *Forest {
	if len(rows) == 0 {
		return &Forest{}
	}

	numFeatures := len(rows[0])
	mtry := int(math.Sqrt(float64(numFeatures)))
	if mtry < 1 {
		mtry = 1
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	forest := &Forest{
		Trees:       make([]*TreeNode, 0, cfg.TreeCount),
		Importances: make([]float64, numFeatures),
	}

	for t := 0; t < cfg.TreeCount; t++ {
		sampleRows := make([][]float64, len(rows))
		sampleLabels := make([]float64, len(rows))
		for i := range rows {
			j := rng.Intn(len(rows))
			sampleRows[i] = rows[j]
			sampleLabels[i] = labels[j]
		}

		builder := &treeBuilder{
			cfg:          cfg,
			mtry:         mtry,
			rng:          rng,
			totalSamples: float64(len(sampleLabels)),
			importances:  forest.Importances,
		}
		forest.Trees = append(forest.Trees, builder.build(sampleRows, sampleLabels, 0))
	}

	normalize(forest.Importances)

	return forest
}

// Probability returns the positive-class probability for a row: the
// mean leaf value across all trees.
func (f *Forest) Probability(row []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}

	sum := 0.0
	for _, tree := range f.Trees {
		sum += leafValue(tree, row)
	}
	return sum / float64(len(f.Trees))
}

// PathContributions decomposes a single prediction into per-feature
// contributions: for each tree, walking from the root to a leaf, the
// change in node value at each split is credited to the split feature.
// The bias (mean root value) plus the summed contributions equals the
// forest probability exactly.
func (f *Forest) PathContributions(row []float64) (bias float64, contributions []float64) {
	if len(f.Trees) == 0 {
		return 0, nil
	}

	numFeatures := len(row)
	contributions = make([]float64, numFeatures)

	for _, tree := range f.Trees {
		node := tree
		bias += node.Value
		for !node.IsLeaf {
			var next *TreeNode
			if row[node.Feature] <= node.Threshold {
				next = node.Left
			} else {
				next = node.Right
			}
			if node.Feature < numFeatures {
				contributions[node.Feature] += next.Value - node.Value
			}
			node = next
		}
	}

	n := float64(len(f.Trees))
	bias /= n
	for i := range contributions {
		contributions[i] /= n
	}

	return bias, contributions
}

func leafValue(node *TreeNode, row []float64) float64 {
	for !node.IsLeaf {
		if row[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

type treeBuilder struct {
	cfg          ForestConfig
	mtry         int
	rng          *rand.Rand
	totalSamples float64
	importances  []float64
}

func (b *treeBuilder) build(rows [][]float64, labels []float64, depth int) *TreeNode {
	node := &TreeNode{Value: mean(labels)}

	if depth >= b.cfg.MaxDepth || len(labels) < b.cfg.MinSamples || isHomogeneous(labels) {
		node.IsLeaf = true
		return node
	}

	feature, threshold, gain := b.findBestSplit(rows, labels)
	if gain <= 0 {
		node.IsLeaf = true
		return node
	}

	b.importances[feature] += gain * float64(len(labels)) / b.totalSamples

	leftRows, leftLabels, rightRows, rightLabels := splitData(rows, labels, feature, threshold)

	node.Feature = feature
	node.Threshold = threshold
	node.Left = b.build(leftRows, leftLabels, depth+1)
	node.Right = b.build(rightRows, rightLabels, depth+1)

	return node
}

// Candidate split points per feature, as quantiles of the observed
// values.
var splitQuantiles = []float64{0.25, 0.5, 0.75}

func (b *treeBuilder) findBestSplit(rows [][]float64, labels []float64) (int, float64, float64) {
	if len(rows) == 0 {
		return 0, 0, 0
	}

	numFeatures := len(rows[0])
	parentImpurity := giniImpurity(labels)

	bestFeature := 0
	bestThreshold := 0.0
	bestGain := 0.0

	for _, feature := range b.sampleFeatures(numFeatures) {
		values := make([]float64, len(rows))
		for i, row := range rows {
			values[i] = row[feature]
		}
		sort.Float64s(values)

		for _, q := range splitQuantiles {
			threshold := stat.Quantile(q, stat.Empirical, values, nil)

			_, leftLabels, _, rightLabels := splitData(rows, labels, feature, threshold)
			if len(leftLabels) == 0 || len(rightLabels) == 0 {
				continue
			}

			leftWeight := float64(len(leftLabels)) / float64(len(labels))
			rightWeight := float64(len(rightLabels)) / float64(len(labels))
			gain := parentImpurity - (leftWeight*giniImpurity(leftLabels) + rightWeight*giniImpurity(rightLabels))

			if gain > bestGain {
				bestGain = gain
				bestFeature = feature
				bestThreshold = threshold
			}
		}
	}

	return bestFeature, bestThreshold, bestGain
}

func (b *treeBuilder) sampleFeatures(numFeatures int) []int {
	perm := b.rng.Perm(numFeatures)
	if b.mtry < len(perm) {
		perm = perm[:b.mtry]
	}
	return perm
}

func splitData(rows [][]float64, labels []float64, feature int, threshold float64) ([][]float64, []float64, [][]float64, []float64) {
	var (
		leftRows    [][]float64
		leftLabels  []float64
		rightRows   [][]float64
		rightLabels []float64
	)

	for i, row := range rows {
		if row[feature] <= threshold {
			leftRows = append(leftRows, row)
			leftLabels = append(leftLabels, labels[i])
		} else {
			rightRows = append(rightRows, row)
			rightLabels = append(rightLabels, labels[i])
		}
	}

	return leftRows, leftLabels, rightRows, rightLabels
}

func giniImpurity(labels []float64) float64 {
	if len(labels) == 0 {
		return 0
	}

	positives := 0
	for _, label := range labels {
		if label >= 0.5 {
			positives++
		}
	}

	p := float64(positives) / float64(len(labels))
	return 1 - p*p - (1-p)*(1-p)
}

func isHomogeneous(labels []float64) bool {
	if len(labels) == 0 {
		return true
	}
	first := labels[0]
	for _, v := range labels {
		if v != first {
			return false
		}
	}
	return true
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func normalize(values []float64) {
	total := 0.0
	for _, v := range values {
		total += v
	}
	if total == 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
