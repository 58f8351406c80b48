package estimator

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
)

// Tree is a CART regression tree over one-hot encoded job type and
// standardized hours worked. Pay labels are log-transformed before fitting
// (and exponentiated back on predict) to tame the skew of commission pay;
// rows whose log pay falls outside 1.5×IQR of the quartiles are dropped as
// outliers. Splitting minimizes the sum of squared errors and is fully
// deterministic.
type Tree struct {
	model treeModel
}

// treeModel holds everything needed to score a row. Fields are exported for
// gob serialization only.
type treeModel struct {
	Types     []string // one-hot column order, sorted
	HoursMean float64
	HoursStd  float64
	Nodes     []treeNode // Nodes[0] is the root
}

type treeNode struct {
	Feature   int // feature column to split on; -1 marks a leaf
	Threshold float64
	Left      int // child node indexes
	Right     int
	Value     float64 // mean log pay at this node
}

// NewTree returns an untrained regression tree.
func NewTree() *Tree {
	return &Tree{}
}

// Fit trains the tree on the given samples, replacing any previous model.
// Samples with a non-positive pay are excluded before fitting.
func (t *Tree) Fit(samples []Sample) error {
	var kept []Sample
	var labels []float64
	for _, s := range samples {
		if s.Pay <= 0 {
			continue
		}
		kept = append(kept, s)
		labels = append(labels, math.Log(s.Pay))
	}
	if len(kept) == 0 {
		return ErrNoTrainingData
	}

	// Trim outliers on the log-pay scale.
	sorted := append([]float64(nil), labels...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr

	samples2 := kept[:0]
	labels2 := labels[:0]
	for i, s := range kept {
		if labels[i] < lower || labels[i] > upper {
			continue
		}
		samples2 = append(samples2, s)
		labels2 = append(labels2, labels[i])
	}
	if len(samples2) == 0 {
		return ErrNoTrainingData
	}

	m := treeModel{
		Types:     distinctTypes(samples2),
		HoursMean: mean(hoursOf(samples2)),
	}
	m.HoursStd = stddev(hoursOf(samples2), m.HoursMean)
	if m.HoursStd == 0 {
		m.HoursStd = 1
	}

	rows := make([][]float64, len(samples2))
	for i, s := range samples2 {
		rows[i] = m.encode(s.JobType, s.Hours)
	}

	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	m.grow(rows, labels2, idx)

	t.model = m
	return nil
}

// Predict scores each feature row and returns the predicted pay values in
// the same order.
func (t *Tree) Predict(features []Features) ([]float64, error) {
	if len(t.model.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	out := make([]float64, len(features))
	for i, f := range features {
		x := t.model.encode(f.JobType, f.Hours)
		n := t.model.Nodes[0]
		for n.Feature >= 0 {
			if x[n.Feature] <= n.Threshold {
				n = t.model.Nodes[n.Left]
			} else {
				n = t.model.Nodes[n.Right]
			}
		}
		out[i] = math.Exp(n.Value)
	}
	return out, nil
}

// MarshalBinary serializes the trained model with gob.
func (t *Tree) MarshalBinary() ([]byte, error) {
	if len(t.model.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(t.model); err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the model with the serialized one.
func (t *Tree) UnmarshalBinary(data []byte) error {
	var m treeModel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return fmt.Errorf("decoding model: %w", err)
	}
	if len(m.Nodes) == 0 {
		return fmt.Errorf("decoding model: empty tree")
	}
	t.model = m
	return nil
}

// encode maps a (job type, hours) pair onto the model's feature columns:
// one one-hot column per known job type (unknown types encode to all zeros)
// plus the standardized hours column.
func (m *treeModel) encode(jobType string, hours float64) []float64 {
	x := make([]float64, len(m.Types)+1)
	for i, t := range m.Types {
		if t == jobType {
			x[i] = 1
			break
		}
	}
	x[len(m.Types)] = (hours - m.HoursMean) / m.HoursStd
	return x
}

// grow recursively builds the subtree over the rows selected by idx and
// returns the new node's index.
func (m *treeModel) grow(rows [][]float64, y []float64, idx []int) int {
	cur := len(m.Nodes)
	m.Nodes = append(m.Nodes, treeNode{Feature: -1, Value: meanAt(y, idx)})

	if len(idx) < 2 || pure(y, idx) {
		return cur
	}

	feature, threshold, ok := bestSplit(rows, y, idx)
	if !ok {
		return cur
	}

	var left, right []int
	for _, i := range idx {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := m.grow(rows, y, left)
	r := m.grow(rows, y, right)
	m.Nodes[cur].Feature = feature
	m.Nodes[cur].Threshold = threshold
	m.Nodes[cur].Left = l
	m.Nodes[cur].Right = r
	return cur
}

// bestSplit scans every feature for the threshold minimizing the combined
// sum of squared errors of the two sides. Returns ok=false when no feature
// has two distinct values among the selected rows.
func bestSplit(rows [][]float64, y []float64, idx []int) (feature int, threshold float64, ok bool) {
	bestSSE := math.Inf(1)
	nFeatures := len(rows[idx[0]])

	order := make([]int, len(idx))
	for f := 0; f < nFeatures; f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool {
			return rows[order[a]][f] < rows[order[b]][f]
		})

		// Prefix sums over the sorted order for O(1) SSE at each cut.
		n := len(order)
		sum := make([]float64, n+1)
		sumSq := make([]float64, n+1)
		for i, ri := range order {
			sum[i+1] = sum[i] + y[ri]
			sumSq[i+1] = sumSq[i] + y[ri]*y[ri]
		}

		for i := 0; i < n-1; i++ {
			v, next := rows[order[i]][f], rows[order[i+1]][f]
			if v == next {
				continue
			}
			k := float64(i + 1)
			rest := float64(n) - k
			leftSSE := sumSq[i+1] - sum[i+1]*sum[i+1]/k
			rightSSE := (sumSq[n] - sumSq[i+1]) - (sum[n]-sum[i+1])*(sum[n]-sum[i+1])/rest
			if sse := leftSSE + rightSSE; sse < bestSSE {
				bestSSE = sse
				feature = f
				threshold = (v + next) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

// --- small numeric helpers ---

func distinctTypes(samples []Sample) []string {
	seen := make(map[string]bool)
	var types []string
	for _, s := range samples {
		if !seen[s.JobType] {
			seen[s.JobType] = true
			types = append(types, s.JobType)
		}
	}
	sort.Strings(types)
	return types
}

func hoursOf(samples []Sample) []float64 {
	h := make([]float64, len(samples))
	for i, s := range samples {
		h[i] = s.Hours
	}
	return h
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64, mu float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += (v - mu) * (v - mu)
	}
	return math.Sqrt(sum / float64(len(vals)))
}

func meanAt(y []float64, idx []int) float64 {
	var sum float64
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

func pure(y []float64, idx []int) bool {
	for _, i := range idx[1:] {
		if y[i] != y[idx[0]] {
			return false
		}
	}
	return true
}

// quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
