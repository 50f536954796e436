package fetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	in := `<p>First   paragraph with <span class="cite">601 U.S. 416</span>.</p>
<p>Second &amp; final&nbsp;paragraph.</p><br><div>Trailing block</div>`
	got := htmlToText(in)

	assert.Equal(t, "First paragraph with 601 U.S. 416.\n\nSecond & final paragraph.\n\nTrailing block", got)
}

func TestHTMLToTextPlainInputUnchanged(t *testing.T) {
	assert.Equal(t, "just text", htmlToText("  just text  "))
}

func TestExtractRawTextPlain(t *testing.T) {
	assert.Equal(t, "Executive Order 14300", extractRawText("  Executive Order 14300\n"))
}

func TestExtractRawTextHTMLWrapper(t *testing.T) {
	in := `<html><body><pre>Order text with &quot;quotes&quot; &amp; markers.
See <a href="/d/x">EO 13771</a> for details.</pre></body></html>`
	got := extractRawText(in)

	assert.Contains(t, got, `Order text with "quotes" & markers.`)
	assert.NotContains(t, got, "<a", "anchor markup must be stripped")
	assert.NotContains(t, got, "EO 13771", "anchor contents go with the tag")
}

func TestLimiterSpacesCalls(t *testing.T) {
	l := newLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.wait(ctx))
	require.NoError(t, l.wait(ctx))
	require.NoError(t, l.wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond,
		"three calls at 50ms spacing take at least 100ms")
}

func TestLimiterContextCancel(t *testing.T) {
	l := newLimiter(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.wait(ctx))
	cancel()
	err := l.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
