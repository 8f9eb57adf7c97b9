package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusPrintsIconAndMessage(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("🔍", "probing vector store...")

	assert.Contains(t, buf.String(), "🔍")
	assert.Contains(t, buf.String(), "probing vector store...")
}

func TestStatusWithoutIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Status("", "detail line")

	assert.Equal(t, "   detail line\n", buf.String())
}

func TestSuccessAndErrorIcons(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("ingested %d documents", 3)
	w.Errorf("query failed: %s", "timeout")

	assert.Contains(t, buf.String(), "✅ ingested 3 documents")
	assert.Contains(t, buf.String(), "❌ query failed: timeout")
}

func TestHeaderAndField(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Header("Vector Store")
	w.Field("status", "healthy")
	w.Field("documents", 42)

	out := buf.String()
	assert.Contains(t, out, "Vector Store")
	assert.Contains(t, out, "status:")
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "42")
}
