package fault

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStackSignature(t *testing.T) {
	stack := `DatabaseError: connection refused
    at connectPool (pool.go:42:7)
    at openSession (session.go:101:3)
    at handleOrder (orders.go:88:12)
    at main (main.go:10:1)`

	sig := stackSignature(stack)

	parts := strings.Split(sig, "|")
	assert.Len(t, parts, 3, "signature keeps only the first three frames")
	assert.Equal(t, "at connectPool (pool.go)", parts[0])
	assert.Equal(t, "at openSession (session.go)", parts[1])
	assert.Equal(t, "at handleOrder (orders.go)", parts[2])
}

func TestStackSignature_StripsLineColumns(t *testing.T) {
	a := stackSignature("Error: x\n    at f (file.go:10:5)")
	b := stackSignature("Error: x\n    at f (file.go:99:1)")

	assert.Equal(t, a, b)
}

func TestStackSignature_Absent(t *testing.T) {
	assert.Equal(t, "", stackSignature(""))
	assert.Equal(t, "", stackSignature("Error: header only"))
}

func TestStackSignature_FewerThanThreeFrames(t *testing.T) {
	sig := stackSignature("Error: x\n    at only (one.go:1:1)")

	assert.Equal(t, "at only (one.go)", sig)
}

func TestCleanStack_CapsFrames(t *testing.T) {
	var b strings.Builder
	b.WriteString("Error: big stack\n")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "    at frame%d (file.go:%d:1)\n", i, i)
	}

	cleaned := CleanStack(b.String(), 50)
	lines := strings.Split(cleaned, "\n")

	assert.Len(t, lines, 51, "header plus at most 50 frames")
	assert.Equal(t, "Error: big stack", lines[0])
}

func TestCleanStack_DropsBlankLines(t *testing.T) {
	stack := "Error: x\n    at a (a.go:1:1)\n\n   \n    at b (b.go:2:2)"

	cleaned := CleanStack(stack, 50)

	assert.Equal(t, "Error: x\n    at a (a.go:1:1)\n    at b (b.go:2:2)", cleaned)
}

func TestCleanStack_Empty(t *testing.T) {
	assert.Equal(t, "", CleanStack("", 50))
}

func TestCleanStack_DefaultCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("Error: big stack\n")
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "    at frame%d (file.go:%d:1)\n", i, i)
	}

	cleaned := CleanStack(b.String(), 0)

	assert.Len(t, strings.Split(cleaned, "\n"), DefaultMaxStackFrames+1)
}
