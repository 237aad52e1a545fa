package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	assert := assert.New(t)

	orig := Logf
	defer func() { Logf = orig }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("slot %d skipped", 3)
	assert.Equal([]string{"slot 3 skipped"}, got)

	SetLogger(nil)
	assert.NotPanics(func() { Logf("muted %d", 1) })
	assert.Len(got, 1)
}
