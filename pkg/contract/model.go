package contract

import "context"

// Prediction: 分类器输出。
type Prediction struct {
	Label      string
	Confidence float64
}

// Model: 预训练文本分类器（只读，可被多个分区任务并发共享）。
type Model interface {
	Infer(ctx context.Context, text string) (Prediction, error)
}
