package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/winmount/winmount/vfserrors"
)

func TestDispositionTable(t *testing.T) {
	cases := []struct {
		name      string
		d         Disposition
		exists    bool
		wantErr   vfserrors.Kind
		create    bool
		truncate  bool
		newCreate bool
	}{
		{"CreateNew/exists", CreateNew, true, vfserrors.ObjectNameCollision, false, false, false},
		{"CreateNew/missing", CreateNew, false, -1, true, false, true},
		{"CreateAlways/exists", CreateAlways, true, -1, false, true, false},
		{"CreateAlways/missing", CreateAlways, false, -1, true, false, true},
		{"OpenExisting/exists", OpenExisting, true, -1, false, false, false},
		{"OpenExisting/missing", OpenExisting, false, vfserrors.ObjectNameNotFound, false, false, false},
		{"OpenAlways/exists", OpenAlways, true, -1, false, false, false},
		{"OpenAlways/missing", OpenAlways, false, -1, true, false, true},
		{"TruncateExisting/exists", TruncateExisting, true, -1, false, true, false},
		{"TruncateExisting/missing", TruncateExisting, false, vfserrors.ObjectNameNotFound, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Resolve(tc.d, tc.exists)
			if tc.wantErr != -1 {
				require.Error(t, err)
				assert.True(t, vfserrors.Is(err, tc.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.create, out.Create)
			assert.Equal(t, tc.truncate, out.Truncate)
			assert.Equal(t, tc.newCreate, out.NewFileCreated)
		})
	}
}
