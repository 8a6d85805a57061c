package curate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"curator/pkg/contract"
)

// ReportName 为运行报告工件名。
const ReportName = "report.json"

// StageReport 为单个阶段的计数。
type StageReport struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	In          int    `json:"in"`
	Out         int    `json:"out"`
	Removed     int    `json:"removed"`
	SkippedDocs int    `json:"skipped_docs"`
	DurationMS  int64  `json:"dur_ms"`
}

// SkippedPartition 描述一个被隔离的分区及原因。
type SkippedPartition struct {
	Stage  string `json:"stage"`
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Docs   int    `json:"docs"`
	Reason string `json:"reason"`
}

// Report 为运行总结：输入文档数、各阶段移除数、跳过分区与输出文档数。
type Report struct {
	CorrID           string             `json:"corr_id,omitempty"`
	InputPartitions  int                `json:"input_partitions"`
	InputDocs        int                `json:"input_docs"`
	Stages           []StageReport      `json:"stages"`
	Removed          map[string]int     `json:"removed"`
	Skipped          []SkippedPartition `json:"skipped"`
	FailureRatio     float64            `json:"failure_ratio"`
	MaxFailureRatio  float64            `json:"max_failure_ratio"`
	OutputPartitions int                `json:"output_partitions"`
	OutputDocs       int                `json:"output_docs"`
	Artifacts        int                `json:"artifacts"`
	DurationMS       int64              `json:"dur_ms"`
}

func newReport(corrID string, maxRatio float64) Report {
	return Report{CorrID: corrID, Stages: []StageReport{}, Removed: map[string]int{}, Skipped: []SkippedPartition{}, MaxFailureRatio: maxRatio}
}

func (r *Report) setSkipped(fs []contract.PartitionFailure) {
	r.Skipped = r.Skipped[:0]
	for _, f := range fs {
		reason := ""
		if f.Err != nil {
			reason = f.Err.Error()
		}
		r.Skipped = append(r.Skipped, SkippedPartition{Stage: f.Stage, Index: f.Index, Label: f.Label, Docs: f.Docs, Reason: reason})
	}
}

// Summary 返回单行摘要。
func (r Report) Summary() string {
	return fmt.Sprintf("input=%d output=%d skipped_partitions=%d/%d", r.InputDocs, r.OutputDocs, len(r.Skipped), r.InputPartitions)
}

func writeReport(ctx context.Context, w contract.Writer, name string, r Report) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return w.Write(ctx, contract.ArtifactID(name), &buf)
}
