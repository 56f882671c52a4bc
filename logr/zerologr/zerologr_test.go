package zerologr

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func jsonEqual(assert *assert.Assertions, j1, j2 string) {
	v1 := map[string]interface{}{}
	v2 := map[string]interface{}{}

	if err := json.NewDecoder(strings.NewReader(j1)).Decode(&v1); err != nil {
		panic(err)
	}

	if err := json.NewDecoder(strings.NewReader(j2)).Decode(&v2); err != nil {
		panic(err)
	}

	assert.Equal(v1, v2)
}

func TestZerologr(t *testing.T) {
	assert := assert.New(t)

	{
		buf := &strings.Builder{}
		logger := zerolog.New(buf)
		l := (*Logger)(&logger)
		l.Info("snapshot replaced", "rows", 3)
		jsonEqual(assert, `{"level":"info","rows":3,"message":"snapshot replaced"}`, strings.TrimSpace(buf.String()))
	}

	{
		buf := &strings.Builder{}
		logger := zerolog.New(buf)
		l := (*Logger)(&logger)
		l.Error(fmt.Errorf("conn refused"), "apply failed", "target", "replica")
		jsonEqual(assert, `{"level":"error","error":"conn refused","target":"replica","message":"apply failed"}`, strings.TrimSpace(buf.String()))
	}

	{
		buf := &strings.Builder{}
		logger := zerolog.New(buf)
		l := (*Logger)(&logger)
		l2 := l.WithValues("cycle", "c1")
		l2.Error(fmt.Errorf("err"), "msg")
		jsonEqual(assert, `{"level":"error","error":"err","cycle":"c1","message":"msg"}`, strings.TrimSpace(buf.String()))

		// The parent logger is left untouched.
		buf.Reset()
		l.Info("plain")
		jsonEqual(assert, `{"level":"info","message":"plain"}`, strings.TrimSpace(buf.String()))
	}
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	{
		_, err := New(nil, &Options{Level: "no-such-level"})
		assert.Error(err)
	}

	{
		buf := &strings.Builder{}
		l, err := New(buf, &Options{Level: "error"})
		assert.NoError(err)
		l.Info("dropped")
		assert.Equal("", buf.String())
		l.Error(fmt.Errorf("boom"), "kept")
		assert.Contains(buf.String(), `"message":"kept"`)
		assert.Contains(buf.String(), `"time"`)
	}
}
