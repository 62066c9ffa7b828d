package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/medix/medix-server/pkg/models"
)

// Softmax converts logits into a probability distribution summing to 1.
func Softmax(logits []float32) []float32 {
	maxLogit := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxLogit {
			maxLogit = v
		}
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// Sigmoid maps each logit independently into [0,1]. Used by multi-label
// models where confidences need not sum to 1.
func Sigmoid(logits []float32) []float32 {
	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = float32(1.0 / (1.0 + math.Exp(-float64(v))))
	}
	return out
}

// Rank pairs labels with probabilities and returns the top-K predictions
// sorted by confidence descending. The sort is stable, so ties preserve
// the original label order and repeated calls on the same input are
// byte-identical.
func Rank(probs []float32, labels []string, topK int) ([]models.Prediction, error) {
	results, err := pairLabelsAndConfidence(labels, probs)
	if err != nil {
		return nil, err
	}

	sortPredictions(results)

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// RankMultiLabel returns every prediction above threshold, ranked. When
// nothing clears the threshold it falls back to the top fallbackK overall
// so the caller always gets a usable ranking.
func RankMultiLabel(probs []float32, labels []string, threshold float64, fallbackK int) ([]models.Prediction, error) {
	all, err := pairLabelsAndConfidence(labels, probs)
	if err != nil {
		return nil, err
	}

	var results []models.Prediction
	for _, p := range all {
		if p.Confidence > threshold {
			results = append(results, p)
		}
	}

	sortPredictions(results)

	if len(results) == 0 {
		sortPredictions(all)
		if len(all) > fallbackK {
			all = all[:fallbackK]
		}
		return all, nil
	}
	return results, nil
}

func pairLabelsAndConfidence(labels []string, probs []float32) ([]models.Prediction, error) {
	if len(labels) != len(probs) {
		return nil, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(probs))
	}

	results := make([]models.Prediction, 0, len(labels))
	for i, label := range labels {
		results = append(results, models.Prediction{Disease: label, Confidence: float64(probs[i])})
	}
	return results, nil
}

func sortPredictions(preds []models.Prediction) {
	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Confidence > preds[j].Confidence
	})
}
