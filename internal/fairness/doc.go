// Package fairness measures how a ranking distributes exposure across groups
// of a sensitive feature.
//
// Exposure follows the DCG position bias: the item at 1-indexed position j
// receives 1/log2(1+j). Three group metrics are built in:
//
//   - exposure: mean exposure of the group's items (allocation harm)
//   - utility: mean relevance of the group's items
//   - proportional exposure: exposure divided by utility (quality-of-service harm)
//
// A Frame evaluates a list of named metrics for every sensitive feature and
// compares the resulting group values with Ratio (min/max) and Difference
// (max-min). A ratio of 1 means parity; values near 0 mean large disparity.
//
// Usage:
//
//	frame, err := fairness.NewFrame(fairness.Input[string]{
//		Relevance: []float64{0.82, 0.81, 0.80, 0.79, 0.78, 0.77},
//		Ranking:   []int{1, 2, 3, 4, 5, 6},
//		Features: []fairness.Feature[string]{
//			{Name: "gender", Labels: []string{"Man", "Man", "Man", "Woman", "Woman", "Woman"}},
//		},
//	}, fairness.DefaultMetrics[string]())
//	if err != nil { ... }
//	if _, err := frame.Evaluate(); err != nil { ... }
//	ratios, err := frame.Ratio("gender")
package fairness
