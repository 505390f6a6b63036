package attendancesvc

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
)

func TestLoadCatalog_ShippedLessons(t *testing.T) {
	root, err := core.Getwd()
	require.NoError(t, err)
	cat, err := LoadCatalog(filepath.Join(root, "config", "lessons.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, cat.Lessons)

	validate, translator := core.NewValidator()
	catchup.InitValidators(validate, translator)
	for _, l := range cat.Lessons {
		if err := catchup.ValidateToken(l.Token(), validate, translator); err != nil {
			t.Errorf("lesson %s: ValidateToken() error = %v", l.ID, err)
		}
	}
}

func TestParseCatalog(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		want    int
	}{
		{name: "empty", yaml: "", want: 0},
		{name: "one lesson", yaml: "lessons:\n  - id: a\n    duration_sec: 10\n", want: 1},
		{name: "unknown field", yaml: "lessons:\n  - id: a\n    length: 10\n", wantErr: true},
		{name: "duplicate ids", yaml: "lessons:\n  - id: a\n  - id: a\n", wantErr: true},
		{name: "malformed", yaml: "lessons: [", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cat, err := ParseCatalog(strings.NewReader(tc.yaml))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, cat.Lessons, tc.want)
		})
	}
}

func TestLoadCatalog_Missing(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
