package ident

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curator/internal/executor"
	"curator/pkg/contract"
)

func dataset(sizes ...int) contract.Dataset {
	var ds contract.Dataset
	for i, n := range sizes {
		p := contract.Partition{Index: i, Label: fmt.Sprintf("f%d.jsonl", i)}
		for j := 0; j < n; j++ {
			p.Docs = append(p.Docs, contract.Document{Text: fmt.Sprintf("%d/%d", i, j)})
		}
		ds.Partitions = append(ds.Partitions, p)
	}
	return ds
}

// UT-ID-01: 两个分区、容量 1000 的区间互不重叠
func TestAssignRanges(t *testing.T) {
	a, err := New(Options{Prefix: "VI_", StartIndex: 0, PartitionCapacity: 1000})
	require.NoError(t, err)
	out, err := a.Apply(context.Background(), executor.New(2, nil), dataset(1000, 1000))
	require.NoError(t, err)
	require.Len(t, out.Partitions, 2)
	p0, p1 := out.Partitions[0].Docs, out.Partitions[1].Docs
	assert.Equal(t, "VI_0000000000", p0[0].ID)
	assert.Equal(t, "VI_0000000999", p0[999].ID)
	assert.Equal(t, "VI_0000001000", p1[0].ID)
	assert.Equal(t, "VI_0000001999", p1[999].ID)
}

// UT-ID-02: 全局无重复；重复执行结果一致
func TestAssignNoCollisionAndIdempotent(t *testing.T) {
	a, err := New(Options{Prefix: "X", StartIndex: 7, PartitionCapacity: 50})
	require.NoError(t, err)
	in := dataset(3, 50, 0, 17, 1)
	first, err := a.Apply(context.Background(), executor.New(4, nil), in)
	require.NoError(t, err)
	second, err := a.Apply(context.Background(), executor.New(1, nil), in)
	require.NoError(t, err)
	assert.Equal(t, first, second, "相同输入与参数应得到相同 ID")

	seen := map[string]bool{}
	for _, p := range first.Partitions {
		for _, d := range p.Docs {
			assert.False(t, seen[d.ID], "ID 重复: %s", d.ID)
			seen[d.ID] = true
		}
	}
	assert.Len(t, seen, 71)

	again, err := a.Apply(context.Background(), executor.New(2, nil), first)
	require.NoError(t, err)
	assert.Equal(t, first, again, "对已分配数据重跑为恒等")
}

// UT-ID-03: 超出容量的分区被隔离，其余分区正常
func TestAssignCapacityExceeded(t *testing.T) {
	a, err := New(Options{Prefix: "p", PartitionCapacity: 2})
	require.NoError(t, err)
	out, err := a.Apply(context.Background(), executor.New(2, nil), dataset(2, 3, 1))
	require.NoError(t, err)
	assert.Len(t, out.Partitions, 2)
	require.Len(t, out.Skipped, 1)
	assert.Equal(t, 1, out.Skipped[0].Index)
	var ce *contract.CapacityExceededError
	require.ErrorAs(t, out.Skipped[0].Err, &ce)
	assert.Equal(t, 3, ce.Count)
	assert.EqualValues(t, 2, ce.Capacity)
	assert.ErrorIs(t, out.Skipped[0].Err, contract.ErrCapacityExceeded)
}

// 计数器超过补零宽度同样视为容量不足
func TestAssignWidthOverflow(t *testing.T) {
	a, err := New(Options{PartitionCapacity: 60, Width: 2})
	require.NoError(t, err)
	_, err = a.AssignPartition(context.Background(), dataset(0, 50).Partitions[1])
	assert.ErrorIs(t, err, contract.ErrCapacityExceeded)
	p, err := a.AssignPartition(context.Background(), dataset(60).Partitions[0])
	require.NoError(t, err)
	assert.Equal(t, "59", p.Docs[59].ID)
}

// 原有不同 ID 保存在 source_id
func TestAssignKeepsSourceID(t *testing.T) {
	a, err := New(Options{Prefix: "n", PartitionCapacity: 10, Width: 3})
	require.NoError(t, err)
	p := contract.Partition{Docs: []contract.Document{{ID: "orig-1", Text: "x"}}}
	out, err := a.AssignPartition(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "n000", out.Docs[0].ID)
	v, ok := out.Docs[0].Field(SourceIDField)
	require.True(t, ok)
	assert.Equal(t, "orig-1", v)
	assert.Equal(t, "orig-1", p.Docs[0].ID, "输入不应被修改")
}

func TestNewValidation(t *testing.T) {
	cases := []Options{
		{PartitionCapacity: 0},
		{PartitionCapacity: 1, StartIndex: -1},
		{PartitionCapacity: 1, Width: 19},
	}
	for i, o := range cases {
		_, err := New(o)
		assert.ErrorIs(t, err, contract.ErrConstruction, "case %d", i)
	}
	a, err := New(Options{PartitionCapacity: 1 << 62})
	require.NoError(t, err)
	_, _, err = a.Range(4)
	assert.ErrorIs(t, err, contract.ErrCapacityExceeded, "区间越界")
}
