package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThiagoRGoveia/lfs-harmonizer/internal/report"
)

func TestRunCrossref(t *testing.T) {
	t.Run("should report header coverage per field", func(t *testing.T) {
		input := t.TempDir()
		writeRelease(t, input, "LFS_APR2005.csv", oldRelease)
		writeRelease(t, input, "LFS_JUL2005.csv", "svyyr,SVYMO,C07_AGE,C08_MSTAT\n2005,7,1,1\n")
		writeRelease(t, input, "LFS_JUL2019.csv", "PUFSVYYR,PUFSVYMO,PUFC05_AGE\n2019,7,25\n")
		writeRelease(t, input, "LFS_OCT2019.csv", "")

		writer, err := report.NewWriter(t.TempDir())
		require.NoError(t, err)

		result, err := RunCrossref(NewFileProcessor(nil, defaultExtensions), newTestSchema(t), writer, input)
		require.NoError(t, err)

		assert.Equal(t, 3, result.Releases)
		assert.Equal(t, 2, result.Layouts)
		require.Len(t, result.Entries, 4)

		age := result.Entries[2]
		assert.Equal(t, "PUFC05_AGE", age.Field)
		assert.Equal(t, 100.0, age.CoveragePct)
		assert.Equal(t, []string{"C07_AGE", "PUFC05_AGE"}, age.VariantsMatched)

		mstat := result.Entries[3]
		assert.Equal(t, 66.7, mstat.CoveragePct)
		assert.Equal(t, []string{"LFS_JUL2019.csv"}, mstat.UncoveredReleases)

		assert.FileExists(t, result.CoveragePath)
		assert.FileExists(t, result.DetailPath)
	})

	t.Run("should fail when no release is found", func(t *testing.T) {
		writer, err := report.NewWriter(t.TempDir())
		require.NoError(t, err)

		_, err = RunCrossref(NewFileProcessor(nil, defaultExtensions), newTestSchema(t), writer, t.TempDir())
		assert.ErrorIs(t, err, ErrNoReleaseFiles)
	})
}
