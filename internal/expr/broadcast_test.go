package expr

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandLengths(t *testing.T) {
	tests := []struct {
		name       string
		truthy     []int64
		falsy      []int64
		mask       []bool
		wantTruthy []interface{}
		wantFalsy  []interface{}
		wantMask   []interface{}
	}{
		{
			name:       "scalar branches follow the mask",
			truthy:     []int64{1},
			falsy:      []int64{2},
			mask:       []bool{true, false, true},
			wantTruthy: []interface{}{int64(1), int64(1), int64(1)},
			wantFalsy:  []interface{}{int64(2), int64(2), int64(2)},
			wantMask:   []interface{}{true, false, true},
		},
		{
			name:       "scalar mask follows the branches",
			truthy:     []int64{1, 2},
			falsy:      []int64{3, 4},
			mask:       []bool{false},
			wantTruthy: []interface{}{int64(1), int64(2)},
			wantFalsy:  []interface{}{int64(3), int64(4)},
			wantMask:   []interface{}{false, false},
		},
		{
			name:       "all scalars stay scalars",
			truthy:     []int64{1},
			falsy:      []int64{2},
			mask:       []bool{true},
			wantTruthy: []interface{}{int64(1)},
			wantFalsy:  []interface{}{int64(2)},
			wantMask:   []interface{}{true},
		},
		{
			name:       "mismatched lengths are left alone",
			truthy:     []int64{1, 2},
			falsy:      []int64{3, 4, 5},
			mask:       []bool{true},
			wantTruthy: []interface{}{int64(1), int64(2)},
			wantFalsy:  []interface{}{int64(3), int64(4), int64(5)},
			wantMask:   []interface{}{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer mem.AssertSize(t, 0)

			truthy := series.New("t", tt.truthy, mem)
			defer truthy.Release()
			falsy := series.New("f", tt.falsy, mem)
			defer falsy.Release()
			mask := series.New("m", tt.mask, mem)
			defer mask.Release()

			gotT, gotF, gotM, err := ExpandLengths(mem, truthy, falsy, mask)
			require.NoError(t, err)
			defer gotT.Release()
			defer gotF.Release()
			defer gotM.Release()

			assert.Equal(t, tt.wantTruthy, gotT.Values())
			assert.Equal(t, tt.wantFalsy, gotF.Values())
			assert.Equal(t, tt.wantMask, gotM.Values())
			assert.Equal(t, "t", gotT.Name())
		})
	}
}
