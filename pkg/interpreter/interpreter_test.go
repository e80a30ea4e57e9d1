package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldEval(t *testing.T) {
	// Plain expressions are evaluated.
	assert.True(t, ShouldEval("2+2"))
	assert.True(t, ShouldEval("a"))
	assert.True(t, ShouldEval("[1, 2, 3]"))

	// Statements are executed.
	assert.False(t, ShouldEval("import numpy as np"))
	assert.False(t, ShouldEval("print(a)"))
	assert.False(t, ShouldEval("a = 2"))

	// The supported exceptions despite containing parentheses.
	assert.True(t, ShouldEval("plt.show()"))
	assert.True(t, ShouldEval("result.item()"))
}

func TestSplitForEvalSingleLine(t *testing.T) {
	body, tail := SplitForEval("2+2")
	assert.Equal(t, "", body)
	assert.Equal(t, "2+2", tail)

	body, tail = SplitForEval("import numpy as np")
	assert.Equal(t, "import numpy as np", body)
	assert.Equal(t, "", tail)
}

func TestSplitForEvalMultiLine(t *testing.T) {
	body, tail := SplitForEval("a = 2\nb = 3\na + b")
	assert.Equal(t, "a = 2\nb = 3", body)
	assert.Equal(t, "a + b", tail)

	// A statement tail keeps the whole snippet in the body.
	body, tail = SplitForEval("a = 2\nprint(a)")
	assert.Equal(t, "a = 2\nprint(a)", body)
	assert.Equal(t, "", tail)
}

func TestSplitForEvalRewritesPltShow(t *testing.T) {
	body, tail := SplitForEval("plt.plot([1,2])\nplt.show()")
	assert.Equal(t, "plt.plot([1,2])", body)
	assert.Equal(t, "plt", tail)
}

func TestSplitForEvalItemException(t *testing.T) {
	body, tail := SplitForEval("x = compute()\nx.item()")
	assert.Equal(t, "x = compute()", body)
	assert.Equal(t, "x.item()", tail)
}
