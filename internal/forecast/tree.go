package forecast

import "sort"

// treeNode is one node of a regression tree. Leaves carry the fitted value;
// internal nodes route on Feature <= Threshold.
type treeNode struct {
	Leaf      bool      `json:"leaf"`
	Value     float64   `json:"value,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
}

func (n *treeNode) predict(x []float64) float64 {
	for !n.Leaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

// treeParams bounds tree growth during boosting.
type treeParams struct {
	maxDepth int
	minLeaf  int
}

// leafValue computes the fitted value for a set of residuals. Squared loss
// uses the mean; pinball loss uses the target quantile of the residuals,
// which is the loss-minimizing constant for quantile regression.
type leafValue func(residuals []float64) float64

// buildTree grows a regression tree on the residuals using variance-reduction
// splits. rows index into the full training matrix.
func buildTree(x [][]float64, residuals []float64, rows []int, p treeParams, leaf leafValue) *treeNode {
	return growNode(x, residuals, rows, 0, p, leaf)
}

func growNode(x [][]float64, residuals []float64, rows []int, depth int, p treeParams, leaf leafValue) *treeNode {
	if depth >= p.maxDepth || len(rows) < 2*p.minLeaf || constantTarget(residuals, rows) {
		return &treeNode{Leaf: true, Value: leaf(collect(residuals, rows))}
	}

	feature, threshold, ok := bestSplit(x, residuals, rows, p.minLeaf)
	if !ok {
		return &treeNode{Leaf: true, Value: leaf(collect(residuals, rows))}
	}

	var left, right []int
	for _, r := range rows {
		if x[r][feature] <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growNode(x, residuals, left, depth+1, p, leaf),
		Right:     growNode(x, residuals, right, depth+1, p, leaf),
	}
}

// bestSplit scans every feature for the threshold that minimizes the summed
// squared error of the two children. Thresholds are midpoints between
// consecutive distinct feature values.
func bestSplit(x [][]float64, residuals []float64, rows []int, minLeaf int) (feature int, threshold float64, ok bool) {
	bestScore := parentSSE(residuals, rows)
	numFeatures := len(x[rows[0]])

	order := make([]int, len(rows))
	for f := 0; f < numFeatures; f++ {
		copy(order, rows)
		sort.Slice(order, func(i, j int) bool { return x[order[i]][f] < x[order[j]][f] })

		// Prefix sums over the sorted order enable O(1) SSE per candidate.
		var leftSum, leftSq float64
		totalSum, totalSq := sums(residuals, order)

		for i := 0; i < len(order)-1; i++ {
			r := residuals[order[i]]
			leftSum += r
			leftSq += r * r

			if x[order[i]][f] == x[order[i+1]][f] {
				continue
			}
			nLeft, nRight := i+1, len(order)-i-1
			if nLeft < minLeaf || nRight < minLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			score := (leftSq - leftSum*leftSum/float64(nLeft)) +
				(rightSq - rightSum*rightSum/float64(nRight))

			if score < bestScore-1e-12 {
				bestScore = score
				feature = f
				threshold = (x[order[i]][f] + x[order[i+1]][f]) / 2
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func parentSSE(residuals []float64, rows []int) float64 {
	sum, sq := sums(residuals, rows)
	return sq - sum*sum/float64(len(rows))
}

func sums(residuals []float64, rows []int) (sum, sq float64) {
	for _, r := range rows {
		v := residuals[r]
		sum += v
		sq += v * v
	}
	return sum, sq
}

func constantTarget(residuals []float64, rows []int) bool {
	first := residuals[rows[0]]
	for _, r := range rows[1:] {
		if residuals[r] != first {
			return false
		}
	}
	return true
}

func collect(residuals []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = residuals[r]
	}
	return out
}
