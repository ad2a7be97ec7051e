// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flowq

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](seq func(yield func(T) bool)) []T {
	var out []T
	seq(func(item T) bool {
		out = append(out, item)
		return true
	})
	return out
}

func TestPipelineMapFilterEndToEnd(t *testing.T) {
	input := []int{1, 2, 3, 4, 5, 6, 7, 8}
	p := NewPipeline[int]().
		FromSlice(input, 1).
		Map(func(x int) (int, error) { return x * x, nil }, 3).
		Filter(func(x int) (bool, error) { return x%2 == 0, nil }, 2)

	got := collect(p.All())
	sort.Ints(got)

	var want []int
	for _, x := range input {
		sq := x * x
		if sq%2 == 0 {
			want = append(want, sq)
		}
	}
	sort.Ints(want)
	assert.Equal(t, want, got)

	errs := p.Join()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestPipelineSortIsBarrier(t *testing.T) {
	input := []int{5, 3, 1, 4, 2}
	p := NewPipeline[int]().
		FromSlice(input, 1).
		Sort(func(a, b int) int { return a - b })

	got := collect(p.All())
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestPipelineSortReverse(t *testing.T) {
	input := []int{5, 3, 1, 4, 2}
	p := NewPipeline[int]().
		FromSlice(input, 1).
		Sort(Reverse(func(a, b int) int { return a - b }))

	got := collect(p.All())
	assert.Equal(t, []int{5, 4, 3, 2, 1}, got)
}

func TestPipelineFoldSumsToTotal(t *testing.T) {
	input := make([]int, 100)
	for i := range input {
		input[i] = i + 1
	}
	p := NewPipeline[int]().FromSlice(input, 1)
	result, err := p.Fold(func(acc, item int) int { return acc + item }, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 5050, result)
}

func TestPipelineFoldEmptyInputReturnsIdentity(t *testing.T) {
	p := NewPipeline[int]().FromSlice(nil, 1)
	result, err := p.Fold(func(acc, item int) int { return acc + item }, 42, 3)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestPipelineFromFuncConsumesIterSeq(t *testing.T) {
	seq := func(yield func(int) bool) {
		for i := 0; i < 5; i++ {
			if !yield(i) {
				return
			}
		}
	}
	p := NewPipeline[int]().FromFunc(seq, 2)
	got := collect(p.All())
	sort.Ints(got)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestPipelineAllClearsTailPreventingReuse(t *testing.T) {
	p := NewPipeline[int]().FromSlice([]int{1, 2, 3}, 1)
	_ = p.All()
	assert.Panics(t, func() {
		p.Map(func(x int) (int, error) { return x, nil }, 1)
	})
}

func TestPipelineDoubleSourcePanics(t *testing.T) {
	p := NewPipeline[int]().FromSlice([]int{1}, 1)
	assert.Panics(t, func() {
		p.FromSlice([]int{2}, 1)
	})
}

func TestPipelineWorkerErrorSurfacesAtJoin(t *testing.T) {
	boom := errors.New("boom")
	p := NewPipeline[int]().
		FromSlice([]int{1, 2, 3}, 1).
		Map(func(x int) (int, error) { return 0, boom }, 2)

	got := collect(p.All())
	assert.Empty(t, got)

	errs := p.Join()
	var sawBoom bool
	for _, err := range errs {
		if errors.Is(err, boom) {
			sawBoom = true
		}
	}
	assert.True(t, sawBoom)
}

func TestPipelineTeeFansOutToEveryOutput(t *testing.T) {
	p := NewPipeline[int]().FromSlice([]int{1, 2, 3}, 1)
	outs := p.Tee(2)
	require.Len(t, outs, 2)

	var got [2][]int
	var wg sync.WaitGroup
	for i, out := range outs {
		wg.Add(1)
		go func(i int, out *CBQ[int]) {
			defer wg.Done()
			for {
				item, ok := out.Get()
				if !ok {
					return
				}
				got[i] = append(got[i], item)
			}
		}(i, out)
	}
	wg.Wait()
	sort.Ints(got[0])
	sort.Ints(got[1])
	assert.Equal(t, []int{1, 2, 3}, got[0])
	assert.Equal(t, []int{1, 2, 3}, got[1])
}

func TestNewPipelineFromQueueConsumesTeeOutput(t *testing.T) {
	p := NewPipeline[int]().FromSlice([]int{1, 2, 3}, 1)
	outs := p.Tee(1)

	sub := NewPipelineFromQueue[int](outs[0]).
		Map(func(x int) (int, error) { return x + 100, nil }, 1)
	got := collect(sub.All())
	sort.Ints(got)
	assert.Equal(t, []int{101, 102, 103}, got)
}

func TestPipelineStatsReportsStages(t *testing.T) {
	p := NewPipeline[int]().
		FromSlice([]int{1, 2, 3}, 1).
		Map(func(x int) (int, error) { return x, nil }, 2)
	_ = collect(p.All())
	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[0].Workers)
	assert.Equal(t, 2, stats[1].Workers)
}

func TestBatchGroupsBySize(t *testing.T) {
	in := NewCBQ[int](8)
	for i := 1; i <= 7; i++ {
		require.NoError(t, in.Put(i))
	}
	in.Close()

	out := Batch(in, 3)
	var got [][]int
	for {
		batch, ok := out.Get()
		if !ok {
			break
		}
		got = append(got, batch)
	}
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, got)
}

func TestCancelOnContextClosesQueue(t *testing.T) {
	q := NewCBQ[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	CancelOnContext(ctx, q)
	cancel()

	assert.Eventually(t, func() bool { return q.Closed() }, time.Second, time.Millisecond)
}

func TestPutGetBackoffRoundtrip(t *testing.T) {
	q := NewCBQ[int](1)
	require.NoError(t, PutBackoff(q, 7))

	item, ok, err := GetBackoff(q)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, item)
}

func TestFoldUsesSliceValuesSource(t *testing.T) {
	// guard against accidental ordering assumptions: Fold must tolerate
	// any partitioning since combine is associative/commutative here.
	input := slices.Clone([]int{10, 20, 30, 40})
	p := NewPipeline[int]().FromSlice(input, 3)
	result, err := p.Fold(func(acc, item int) int {
		if item > acc {
			return item
		}
		return acc
	}, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 40, result)
}
