// Package metrics は二値分類の評価指標を提供する
package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/voxnet/pkg/errors"
)

// DefaultThreshold は確率を二値ラベルへ変換する際の既定の閾値
const DefaultThreshold = 0.5

// confusion は閾値で二値化した予測と正解の混同行列を数える
func confusion(yTrue, yProb *mat.VecDense, threshold float64) (tp, fp, tn, fn int, err error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, 0, 0, 0, errors.NewValueError("metrics.confusion", "empty vector")
	}
	if yProb.Len() != n {
		return 0, 0, 0, 0, errors.NewDimensionError("metrics.confusion", n, yProb.Len(), 0)
	}

	for i := 0; i < n; i++ {
		pred := yProb.AtVec(i) >= threshold
		actual := yTrue.AtVec(i) >= 0.5
		switch {
		case pred && actual:
			tp++
		case pred && !actual:
			fp++
		case !pred && !actual:
			tn++
		default:
			fn++
		}
	}
	return tp, fp, tn, fn, nil
}

// Accuracy は正解率を計算する。yProb は [0,1] の予測確率、yTrue は 0/1 ラベル
func Accuracy(yTrue, yProb *mat.VecDense, threshold float64) (float64, error) {
	tp, fp, tn, fn, err := confusion(yTrue, yProb, threshold)
	if err != nil {
		return 0, err
	}
	return float64(tp+tn) / float64(tp+fp+tn+fn), nil
}

// Precision は適合率 TP/(TP+FP) を計算する。
// 陽性予測が一つもない場合は 0 を返し UndefinedMetricWarning を発行する
func Precision(yTrue, yProb *mat.VecDense, threshold float64) (float64, error) {
	tp, fp, _, _, err := confusion(yTrue, yProb, threshold)
	if err != nil {
		return 0, err
	}
	if tp+fp == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Precision", "no predicted positives", 0))
		return 0, nil
	}
	return float64(tp) / float64(tp+fp), nil
}

// Recall は再現率 TP/(TP+FN) を計算する。
// 正解に陽性が一つもない場合は 0 を返し UndefinedMetricWarning を発行する
func Recall(yTrue, yProb *mat.VecDense, threshold float64) (float64, error) {
	tp, _, _, fn, err := confusion(yTrue, yProb, threshold)
	if err != nil {
		return 0, err
	}
	if tp+fn == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("Recall", "no actual positives", 0))
		return 0, nil
	}
	return float64(tp) / float64(tp+fn), nil
}

// FMeasure は F1 スコア（適合率と再現率の調和平均）を計算する
func FMeasure(yTrue, yProb *mat.VecDense, threshold float64) (float64, error) {
	p, err := Precision(yTrue, yProb, threshold)
	if err != nil {
		return 0, err
	}
	r, err := Recall(yTrue, yProb, threshold)
	if err != nil {
		return 0, err
	}
	if p+r == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("FMeasure", "precision and recall are both zero", 0))
		return 0, nil
	}
	return 2 * p * r / (p + r), nil
}

// LogLoss は二値交差エントロピー損失を計算する。
// 確率は [eps, 1-eps] にクリップして対数の発散を防ぐ
func LogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("metrics.LogLoss", "empty vector")
	}
	if yProb.Len() != n {
		return 0, errors.NewDimensionError("metrics.LogLoss", n, yProb.Len(), 0)
	}

	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		y := yTrue.AtVec(i)
		sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return sum / float64(n), nil
}
