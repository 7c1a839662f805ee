package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveFolder(t *testing.T) {
	tests := []struct {
		name         string
		creationTime string
		want         string
	}{
		{"full timestamp", "2021-07-15T10:31:00Z", "2021/07"},
		{"date only", "2019-01-02", "2019/01"},
		{"empty", "", "other"},
		{"garbage", "not a date", "other"},
		{"short year", "21-07-15", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, archiveFolder(tt.creationTime))
		})
	}
}

func TestUniqueFilename(t *testing.T) {
	taken := func(paths ...string) func(string) bool {
		set := map[string]bool{}
		for _, p := range paths {
			set[p] = true
		}
		return func(rel string) bool { return set[rel] }
	}

	t.Run("free name kept as is", func(t *testing.T) {
		got := uniqueFilename("2021-07-15T10:31:00Z", "IMG_001.jpg", taken())
		assert.Equal(t, "2021/07/IMG_001.jpg", got)
	})

	t.Run("suffix counts up past taken names", func(t *testing.T) {
		got := uniqueFilename("2021-07-15T10:31:00Z", "IMG_001.jpg",
			taken("2021/07/IMG_001.jpg", "2021/07/IMG_001-2.jpg"))
		assert.Equal(t, "2021/07/IMG_001-3.jpg", got)
	})

	t.Run("no extension", func(t *testing.T) {
		got := uniqueFilename("2021-07-15T10:31:00Z", "scan",
			taken("2021/07/scan"))
		assert.Equal(t, "2021/07/scan-2", got)
	})

	t.Run("unknown date lands in fallback folder", func(t *testing.T) {
		got := uniqueFilename("", "IMG_001.jpg", taken("other/IMG_001.jpg"))
		assert.Equal(t, "other/IMG_001-2.jpg", got)
	})
}

func TestLock(t *testing.T) {
	l := NewLock()
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire(), "held lock must not be acquirable")
	l.Release()
	assert.True(t, l.TryAcquire())
	l.Release()
}
