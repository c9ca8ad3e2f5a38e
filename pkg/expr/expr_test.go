// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalOK(t *testing.T, src string, ctx map[string]interface{}) interface{} {
	t.Helper()
	v, err := Eval(src, ctx)
	require.NoError(t, err)
	return v
}

func TestEval_Literals(t *testing.T) {
	assert.Equal(t, 42.0, evalOK(t, "42", nil))
	assert.Equal(t, 3.5, evalOK(t, "3.5", nil))
	assert.Equal(t, "hi", evalOK(t, `"hi"`, nil))
	assert.Equal(t, "hi", evalOK(t, `'hi'`, nil))
	assert.Equal(t, true, evalOK(t, "true", nil))
	assert.Equal(t, false, evalOK(t, "false", nil))
	assert.Nil(t, evalOK(t, "null", nil))
}

func TestEval_Paths(t *testing.T) {
	ctx := map[string]interface{}{
		"result": map[string]interface{}{
			"status_code": 500.0,
			"items":       []interface{}{"a", "b"},
		},
	}
	assert.Equal(t, 500.0, evalOK(t, "result.status_code", ctx))
	assert.Equal(t, "b", evalOK(t, "result.items.1", ctx))
	assert.Nil(t, evalOK(t, "result.missing.deeper", ctx))
	assert.Nil(t, evalOK(t, "result.items.9", ctx))
}

func TestEval_Comparison(t *testing.T) {
	ctx := map[string]interface{}{"turn": 7.0, "status": "error"}
	assert.Equal(t, true, evalOK(t, "turn > 5", ctx))
	assert.Equal(t, false, evalOK(t, "turn >= 8", ctx))
	assert.Equal(t, true, evalOK(t, `status == "error"`, ctx))
	assert.Equal(t, true, evalOK(t, `status != "ok"`, ctx))

	// Null on either side of a comparison is false, not an error.
	assert.Equal(t, false, evalOK(t, "missing > 5", ctx))
	assert.Equal(t, false, evalOK(t, `missing == "error"`, ctx))
}

func TestEval_Logical(t *testing.T) {
	ctx := map[string]interface{}{"a": true, "b": false, "n": 3.0}
	assert.Equal(t, true, evalOK(t, "a or b", ctx))
	assert.Equal(t, false, evalOK(t, "a and b", ctx))
	assert.Equal(t, true, evalOK(t, "not b", ctx))
	assert.Equal(t, true, evalOK(t, "a and (n > 2 or b)", ctx))
}

func TestEval_ShortCircuit(t *testing.T) {
	// The right side would divide by zero; short-circuit must skip it.
	ctx := map[string]interface{}{"a": false, "z": 0.0}
	assert.Equal(t, false, evalOK(t, "a and 1 / z > 0", ctx))
}

func TestEval_Membership(t *testing.T) {
	ctx := map[string]interface{}{
		"tags": []interface{}{"urgent", "infra"},
		"msg":  "connection refused by host",
		"m":    map[string]interface{}{"key": 1.0},
	}
	assert.Equal(t, true, evalOK(t, `"urgent" in tags`, ctx))
	assert.Equal(t, false, evalOK(t, `"other" in tags`, ctx))
	assert.Equal(t, true, evalOK(t, `"refused" in msg`, ctx))
	assert.Equal(t, true, evalOK(t, `"key" in m`, ctx))
	assert.Equal(t, true, evalOK(t, `"other" not in tags`, ctx))
}

func TestEval_Exists(t *testing.T) {
	ctx := map[string]interface{}{"result": map[string]interface{}{"error": "boom"}}
	assert.Equal(t, true, evalOK(t, "exists result.error", ctx))
	assert.Equal(t, false, evalOK(t, "exists result.output", ctx))
}

func TestEval_Arithmetic(t *testing.T) {
	ctx := map[string]interface{}{"spend": 2.5, "max": 10.0}
	assert.Equal(t, 12.5, evalOK(t, "spend + max", ctx))
	assert.Equal(t, 25.0, evalOK(t, "spend * max", ctx))
	assert.Equal(t, 0.25, evalOK(t, "spend / max", ctx))
	assert.Equal(t, -2.5, evalOK(t, "-spend", ctx))
	assert.Equal(t, "ab", evalOK(t, `"a" + "b"`, ctx))

	_, err := Eval("1 / 0", nil)
	assert.ErrorContains(t, err, "division by zero")
}

func TestParse_RejectsUnsafeConstructs(t *testing.T) {
	for _, src := range []string{
		"open('/etc/passwd')",
		"x = 1",
		"items[0]",
		"foo.bar(1)",
		`"unterminated`,
		"1 +",
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			require.Error(t, err)
			var ee *ExpressionError
			assert.ErrorAs(t, err, &ee)
		})
	}
}

func TestEvalCondition_EmptyAlwaysMatches(t *testing.T) {
	ok, err := EvalCondition("  ", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInterpolate_PreservesTypes(t *testing.T) {
	ctx := map[string]interface{}{
		"steps": map[string]interface{}{
			"step_0": map[string]interface{}{"count": 3.0, "ok": true},
		},
	}
	// Whole-string reference keeps the raw type.
	assert.Equal(t, 3.0, Interpolate("${steps.step_0.count}", ctx))
	assert.Equal(t, true, Interpolate("${steps.step_0.ok}", ctx))
	// Embedded references stringify.
	assert.Equal(t, "count=3 ok=true", Interpolate("count=${steps.step_0.count} ok=${steps.step_0.ok}", ctx))
}

func TestInterpolateParams_Recursive(t *testing.T) {
	ctx := map[string]interface{}{"inputs": map[string]interface{}{"url": "https://example.com"}}
	out := InterpolateParams(map[string]interface{}{
		"target": "${inputs.url}",
		"nested": map[string]interface{}{"list": []interface{}{"${inputs.url}/a"}},
	}, ctx)
	assert.Equal(t, "https://example.com", out["target"])
	nested := out["nested"].(map[string]interface{})
	assert.Equal(t, []interface{}{"https://example.com/a"}, nested["list"])
}

func TestInterpolateInputs(t *testing.T) {
	inputs := map[string]interface{}{"name": "rye", "count": 2.0}

	out, err := InterpolateInputs("hello {input:name} x{input:count}", inputs)
	require.NoError(t, err)
	assert.Equal(t, "hello rye x2", out)

	out, err = InterpolateInputs("opt={input:missing?} def={input:missing:fallback}", inputs)
	require.NoError(t, err)
	assert.Equal(t, "opt= def=fallback", out)

	_, err = InterpolateInputs("need {input:missing}", inputs)
	assert.ErrorContains(t, err, `missing required input "missing"`)
}

func TestResolveEnv(t *testing.T) {
	env := map[string]string{"API_KEY": "secret"}
	assert.Equal(t, "Bearer secret", ResolveEnv("Bearer ${API_KEY}", env))
	assert.Equal(t, "fallback", ResolveEnv("${MISSING:-fallback}", env))
	assert.Equal(t, "", ResolveEnv("${MISSING}", env))
	// Lowercase dotted paths are not env references.
	assert.Equal(t, "${inputs.url}", ResolveEnv("${inputs.url}", env))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "3", Stringify(3.0))
	assert.Equal(t, "3.25", Stringify(3.25))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "x", Stringify("x"))
}
