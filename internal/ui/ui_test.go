package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/spherical/pagesnap/internal/domain"
)

func init() {
	color.NoColor = true
}

func TestConsole_StatusLines(t *testing.T) {
	var out, errOut bytes.Buffer
	c := NewConsole(&out, &errOut)

	c.Success("Downloaded %d image(s).", 3)
	c.Info("hello")
	c.Error("Export failed: %s", "boom")
	c.Warning("careful")
	c.Section("Files")

	assert.Contains(t, out.String(), "✓ Downloaded 3 image(s).")
	assert.Contains(t, out.String(), "ℹ hello")
	assert.Contains(t, out.String(), "Files\n=====")
	assert.Contains(t, errOut.String(), "✗ Export failed: boom")
	assert.Contains(t, errOut.String(), "⚠ careful")
}

func TestConsole_QuietHasNoBars(t *testing.T) {
	c := NewConsole(&bytes.Buffer{}, &bytes.Buffer{})
	c.Quiet = true
	assert.Nil(t, c.Progress(3, "x"))
	assert.Nil(t, c.Spinner("x"))
}

func TestProgressBar_Update(t *testing.T) {
	var buf bytes.Buffer
	bar := NewProgressBar(&buf, 2, "export")

	bar.Update(domain.Progress{Done: 1, Total: 2, Name: "a.pdf", Page: 1})
	bar.Update(domain.Progress{Done: 2, Total: 2, Name: "a.pdf", Page: 2})
	bar.Finish()

	assert.Contains(t, buf.String(), "2/2")
}

func TestReaderPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewReaderPrompter(&out, strings.NewReader("first\r\nsecond\n"))
	prompt := p.For("secret.pdf")

	assert.Equal(t, "first", prompt(domain.NeedPassword))
	assert.Equal(t, "second", prompt(domain.IncorrectPassword))
	assert.Equal(t, "", prompt(domain.IncorrectPassword))

	assert.Contains(t, out.String(), "Password for secret.pdf")
	assert.Contains(t, out.String(), "Incorrect password for secret.pdf")
}

func TestFixed(t *testing.T) {
	f := Fixed("pw")
	assert.Equal(t, "pw", f(domain.NeedPassword))
	assert.Equal(t, "", f(domain.IncorrectPassword))
}

func TestNilIndicatorsAreNoops(t *testing.T) {
	var bar *ProgressBar
	var spin *Spinner
	assert.NotPanics(t, func() {
		bar.Update(domain.Progress{Done: 1, Total: 1})
		bar.Finish()
		spin.Start()
		spin.UpdateMessage("x")
		spin.Stop()
	})
}
