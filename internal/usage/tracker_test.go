package usage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_Record(t *testing.T) {
	tr := NewTracker()

	tr.Record("1", "Architect", Usage{Input: 100, Output: 20})
	tr.Record("2", "Carpenter", Usage{Input: 50, Output: 10, Total: 70})
	tr.Record("3", "Carpenter", Usage{Input: 5, Output: 5})

	assert.Equal(t, Usage{Input: 155, Output: 35, Total: 200}, tr.ProjectTotals())

	byAgent := tr.ByAgent()
	require.Len(t, byAgent, 2)
	assert.Equal(t, Usage{Input: 100, Output: 20, Total: 120}, byAgent["Architect"])
	assert.Equal(t, Usage{Input: 55, Output: 15, Total: 80}, byAgent["Carpenter"])

	byTask := tr.ByTask()
	require.Len(t, byTask, 3)
	assert.Equal(t, 70, byTask["2"].Total)
}

func TestTracker_IgnoresZeroUsage(t *testing.T) {
	tr := NewTracker()
	tr.Record("1", "Painter", Usage{})

	assert.True(t, tr.ProjectTotals().IsZero())
	assert.Empty(t, tr.ByAgent())
	assert.Empty(t, tr.ByTask())
}

func TestTracker_SummaryIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.Record("1", "Mason", Usage{Input: 1, Output: 1})

	s := tr.Summary()
	s.ByAgent["Mason"] = Usage{}
	s.ByTask["other"] = Usage{Total: 9}

	assert.Equal(t, 2, tr.ByAgent()["Mason"].Total)
	assert.Len(t, tr.ByTask(), 1)
	assert.Equal(t, Usage{Input: 1, Output: 1, Total: 2}, s.ProjectTotals)
}

func TestTracker_Clear(t *testing.T) {
	tr := NewTracker()
	tr.Record("1", "Roofer", Usage{Input: 10, Output: 10})

	tr.Clear()

	assert.True(t, tr.ProjectTotals().IsZero())
	assert.Empty(t, tr.ByAgent())
	assert.Empty(t, tr.ByTask())

	tr.Record("1", "Roofer", Usage{Input: 1})
	assert.Equal(t, 1, tr.ProjectTotals().Total)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				tr.Record(fmt.Sprintf("task-%d", i), "Plumber", Usage{Input: 1, Output: 1})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2000, tr.ProjectTotals().Total)
	assert.Equal(t, 2000, tr.ByAgent()["Plumber"].Total)
	assert.Len(t, tr.ByTask(), 20)
}
