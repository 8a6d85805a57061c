package quality

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/executor"
	"curator/pkg/contract"
	"curator/plugins/encoder/fasttext"
)

func numbered(prefix string, parts, per int) contract.Dataset {
	var ds contract.Dataset
	for p := 0; p < parts; p++ {
		part := contract.Partition{Index: p, Label: fmt.Sprintf("%s-%d", prefix, p)}
		for i := 0; i < per; i++ {
			part.Docs = append(part.Docs, contract.Document{Text: fmt.Sprintf("%s %d %d", prefix, p, i)})
		}
		ds.Partitions = append(ds.Partitions, part)
	}
	return ds
}

func TestSampleDeterministic(t *testing.T) {
	ds := numbered("x", 3, 10)
	a := Sample(ds, 5, 42)
	b := Sample(ds, 5, 42)
	assert.Equal(t, a, b, "相同 seed 结果一致")
	assert.Len(t, a, 5)

	rev := contract.Dataset{Partitions: []contract.Partition{ds.Partitions[2], ds.Partitions[0], ds.Partitions[1]}}
	assert.Equal(t, a, Sample(rev, 5, 42), "与分区到达顺序无关")

	assert.Len(t, Sample(ds, 100, 1), 30, "n 超过总数时取全部")
	assert.Empty(t, Sample(contract.Dataset{}, 3, 1))
}

// UT-QLT-03: 训练语料准备：各取 Count，打标签，混洗可复现
func TestPrepareTraining(t *testing.T) {
	ex := executor.New(2, nil)
	opts := TrainingOptions{Count: 4, Seed: 7}
	out, err := PrepareTraining(context.Background(), ex, numbered("good", 2, 5), numbered("bad", 1, 3), opts)
	require.NoError(t, err)
	require.Len(t, out.Partitions, 1)
	docs := out.Partitions[0].Docs
	require.Len(t, docs, 7, "低质量源不足 Count 时取全部")

	counts := map[string]int{}
	for _, d := range docs {
		v, ok := d.Field(fasttext.LabelField)
		require.True(t, ok)
		counts[v.(string)]++
	}
	assert.Equal(t, map[string]int{"hq": 4, "lq": 3}, counts)

	again, err := PrepareTraining(context.Background(), ex, numbered("good", 2, 5), numbered("bad", 1, 3), opts)
	require.NoError(t, err)
	assert.Equal(t, docs, again.Partitions[0].Docs)

	enc := fasttext.New(nil)
	ln, err := enc.Line(docs[0])
	require.NoError(t, err)
	assert.Regexp(t, `^__label__(hq|lq) `, ln)
}

func TestPrepareTrainingValidation(t *testing.T) {
	ex := executor.New(1, nil)
	_, err := PrepareTraining(context.Background(), ex, contract.Dataset{}, contract.Dataset{}, TrainingOptions{})
	assert.True(t, errors.Is(err, contract.ErrConstruction))
	_, err = PrepareTraining(context.Background(), ex, contract.Dataset{}, contract.Dataset{}, TrainingOptions{Count: 1, HighLabel: "x", LowLabel: "x"})
	assert.Error(t, err)
}
