package frontend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aerojs/internal/engine"
)

func run(t *testing.T, src string) (float64, error) {
	t.Helper()
	prog, err := Compile("test.aero", src)
	require.NoError(t, err)
	e := engine.New(engine.Config{ChunkSize: 4096, HighWaterMark: 1 << 20}, nil)
	v, evalErr := e.Evaluate(context.Background(), prog)
	if evalErr != nil {
		return 0, evalErr
	}
	return v.ToNumber(), nil
}

func TestArithmeticAndPrecedence(t *testing.T) {
	n, err := run(t, `return 2 + 3 * 4;`)
	require.NoError(t, err)
	assert.Equal(t, float64(14), n)
}

func TestLetAndWhileLoop(t *testing.T) {
	n, err := run(t, `
		let total = 0;
		let i = 0;
		while (i < 5) {
			total = total + i;
			i = i + 1;
		}
		return total;
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(10), n)
}

func TestIfElse(t *testing.T) {
	n, err := run(t, `
		let x = 7;
		if (x > 10) {
			return 1;
		} else {
			return 2;
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(2), n)
}

func TestLogicalShortCircuit(t *testing.T) {
	n, err := run(t, `
		let a = false;
		let b = true;
		if (a && b) {
			return 1;
		}
		if (a || b) {
			return 2;
		}
		return 3;
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(2), n)
}

func TestUnaryNegateAndNot(t *testing.T) {
	n, err := run(t, `
		let x = -5;
		if (!false) {
			return x * -1;
		}
		return 0;
	`)
	require.NoError(t, err)
	assert.Equal(t, float64(5), n)
}

func TestGlobalBuiltinCall(t *testing.T) {
	n, err := run(t, `return Math.max(3, 9, 1);`)
	require.NoError(t, err)
	assert.Equal(t, float64(9), n)
}

func TestPrintCallCompilesToSingleMain(t *testing.T) {
	prog, err := Compile("test.aero", `print("hello", "world");`)
	require.NoError(t, err)
	assert.Len(t, prog.Functions, 1)
	assert.Equal(t, "main", prog.Functions[0].Name)
}
