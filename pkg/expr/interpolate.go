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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	dollarRef = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)
	inputRef  = regexp.MustCompile(`\{input:([a-zA-Z_][a-zA-Z0-9_]*)(\?|:[^}]*)?\}`)

	// envRef matches only uppercase snake_case identifiers, so shell-style
	// variables never collide with ${dotted.path} interpolation.
	envRef = regexp.MustCompile(`\$\{([A-Z][A-Z0-9_]*)(?::-([^}]*))?\}`)
)

// Interpolate resolves ${dotted.path} references against ctx. When the
// entire template is a single reference, the raw resolved value is
// returned (preserving non-string types); otherwise every reference is
// coalesced to string.
func Interpolate(template string, ctx map[string]interface{}) interface{} {
	if m := dollarRef.FindStringSubmatch(template); m != nil && m[0] == template {
		return Resolve(ctx, strings.Split(m[1], "."))
	}
	return dollarRef.ReplaceAllStringFunc(template, func(ref string) string {
		path := dollarRef.FindStringSubmatch(ref)[1]
		return Stringify(Resolve(ctx, strings.Split(path, ".")))
	})
}

// InterpolateParams applies Interpolate recursively through a parameter
// map, preserving raw types for whole-value references.
func InterpolateParams(params map[string]interface{}, ctx map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, ctx)
	}
	return out
}

func interpolateValue(v interface{}, ctx map[string]interface{}) interface{} {
	switch x := v.(type) {
	case string:
		return Interpolate(x, ctx)
	case map[string]interface{}:
		return InterpolateParams(x, ctx)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = interpolateValue(e, ctx)
		}
		return out
	}
	return v
}

// InterpolateInputs resolves {input:name}, {input:name?}, and
// {input:name:default} references. A required input that is absent is an
// error; "?" yields empty; a literal default fills in otherwise.
func InterpolateInputs(template string, inputs map[string]interface{}) (string, error) {
	var firstErr error
	out := inputRef.ReplaceAllStringFunc(template, func(ref string) string {
		m := inputRef.FindStringSubmatch(ref)
		name, suffix := m[1], m[2]
		if v, ok := inputs[name]; ok && v != nil {
			return Stringify(v)
		}
		switch {
		case suffix == "?":
			return ""
		case strings.HasPrefix(suffix, ":"):
			return suffix[1:]
		default:
			if firstErr == nil {
				firstErr = fmt.Errorf("missing required input %q", name)
			}
			return ""
		}
	})
	return out, firstErr
}

// ResolveEnv substitutes ${VAR} and ${VAR:-default} shell-style
// references against an environment dictionary. Only uppercase
// snake_case names match.
func ResolveEnv(template string, env map[string]string) string {
	return envRef.ReplaceAllStringFunc(template, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, def := m[1], m[2]
		if v, ok := env[name]; ok && v != "" {
			return v
		}
		return def
	})
}

// Stringify coalesces an interpolated value to string form.
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		// Render integral floats without a trailing .0, matching how
		// JSON numbers round-trip through interface{}.
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprintf("%v", v)
}
