package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFormatsVersionCommitAndDate(t *testing.T) {
	i := Info{Version: "1.2.3", Commit: "abcdef", Date: "2026-01-01"}
	assert.Equal(t, "1.2.3 (abcdef, 2026-01-01)", i.String())
}

func TestStringAppendsDirtySuffixWhenModified(t *testing.T) {
	i := Info{Version: "1.2.3", Commit: "abcdef", Date: "2026-01-01", Dirty: true}
	assert.Equal(t, "1.2.3 (abcdef-dirty, 2026-01-01)", i.String())
}

func TestGetReturnsDevDefaultsWithoutLdflags(t *testing.T) {
	i := Get()
	assert.NotEmpty(t, i.Version)
}
