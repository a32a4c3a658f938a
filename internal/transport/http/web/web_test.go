package web

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesDefinePages(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	for _, name := range []string{"landing", "login", "dashboard", "new_workflow", "run", "history", "detail", "error"} {
		assert.NotNil(t, tmpl.Lookup(name), name)
	}
}

func TestErrorPageEscapesMessage(t *testing.T) {
	tmpl, err := Templates()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.ExecuteTemplate(&buf, "error", map[string]any{
		"Status":  404,
		"Message": "<script>alert(1)</script>",
	}))
	assert.NotContains(t, buf.String(), "<script>alert(1)</script>")
	assert.Contains(t, buf.String(), "&lt;script&gt;")
}

func TestStaticServesAssets(t *testing.T) {
	f, err := Static().Open("app.js")
	require.NoError(t, err)
	defer f.Close()

	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "EventSource")
}
