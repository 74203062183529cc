package model

import (
	"fmt"
)

// EstimatorState はネットワークの学習状態を表す
type EstimatorState int

const (
	// NotFitted は未学習（初期化直後）の状態
	NotFitted EstimatorState = iota
	// Fitted は少なくとも1エポック学習済みの状態
	Fitted
)

// BaseEstimator はネットワークに埋め込む学習状態の基底構造体。
// fitted フラグは NetworkSnapshot.IsFitted としてチェックポイントに
// 保存され、復元時に引き継がれる
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted はネットワークが学習済みかどうかを返す
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted はネットワークを学習済み状態に設定する。
// 学習ループが各エポックの終わりに呼び出す
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset はネットワークを未学習状態に戻す
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}

// TensorData は名前付き重みテンソルのシリアライゼーション表現
type TensorData struct {
	// Shape はテンソルの形状
	Shape []int

	// Data は行優先でフラット化した値
	Data []float64
}

// NetworkSnapshot はネットワークの全重みを表す構造体（チェックポイント用）
type NetworkSnapshot struct {
	// ModelType はモデルの種類（例: "SexDetNet"）
	ModelType string

	// Version はスナップショット形式のバージョン（互換性チェック用）
	Version string

	// Tensors は名前から重みテンソルへのマップ
	Tensors map[string]TensorData

	// IsFitted はモデルが学習済みかどうか
	IsFitted bool
}

// Validate はNetworkSnapshotの妥当性を検証
func (ns *NetworkSnapshot) Validate() error {
	if ns.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}

	if ns.Version == "" {
		return fmt.Errorf("version is required")
	}

	if ns.IsFitted && len(ns.Tensors) == 0 {
		return fmt.Errorf("fitted model must have weight tensors")
	}

	for name, t := range ns.Tensors {
		size := 1
		for _, d := range t.Shape {
			size *= d
		}
		if size != len(t.Data) {
			return fmt.Errorf("tensor %q: shape %v does not match %d values", name, t.Shape, len(t.Data))
		}
	}

	return nil
}

// Clone はNetworkSnapshotのディープコピーを作成
func (ns *NetworkSnapshot) Clone() *NetworkSnapshot {
	clone := &NetworkSnapshot{
		ModelType: ns.ModelType,
		Version:   ns.Version,
		IsFitted:  ns.IsFitted,
		Tensors:   make(map[string]TensorData, len(ns.Tensors)),
	}
	for name, t := range ns.Tensors {
		td := TensorData{
			Shape: make([]int, len(t.Shape)),
			Data:  make([]float64, len(t.Data)),
		}
		copy(td.Shape, t.Shape)
		copy(td.Data, t.Data)
		clone.Tensors[name] = td
	}
	return clone
}
