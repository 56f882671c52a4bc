package taskrunner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type rejectRunner struct{}

func (rejectRunner) Submit(task func()) error { return ErrTooBusy }
func (rejectRunner) Close() {}

type asyncRunner struct{}

func (asyncRunner) Submit(task func()) error { go task(); return nil }
func (asyncRunner) Close() {}

func TestGo(t *testing.T) {
	assert := assert.New(t)

	for _, r := range []TaskRunner{nil, rejectRunner{}} {
		called := false
		done := Go(r, func() { called = true })
		// Inline: already finished.
		assert.True(called)
		<-done
	}

	called := make(chan struct{})
	done := Go(asyncRunner{}, func() { close(called) })
	<-done
	<-called
}
