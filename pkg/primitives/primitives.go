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

// Package primitives implements the three built-in execution leaves:
// subprocess (via the external rye-proc helper), one-shot HTTP, and
// HTTP/SSE streaming with concurrent sink fan-out. Every resolved chain
// terminates at one of these.
package primitives

import (
	"context"
	"fmt"
)

// Primitive ids, fixed by the built-in tool set.
const (
	SubprocessID = "rye/agent/threads/internal/subprocess"
	HTTPID       = "rye/agent/threads/internal/http"
	StreamID     = "rye/agent/threads/internal/http_stream"
)

// ConfigurationError reports a required helper binary or configuration
// missing at startup; fatal to the process.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Primitive is one built-in execution leaf.
type Primitive interface {
	// ID returns the primitive's fixed tool id.
	ID() string

	// Execute runs the primitive. params are the composed chain
	// parameters; env is the resolved environment dictionary.
	Execute(ctx context.Context, params map[string]interface{}, env map[string]string) (map[string]interface{}, error)
}

// Registry maps primitive ids to implementations. The fixed set is
// registered at process start; there is no dynamic loading.
type Registry struct {
	prims map[string]Primitive
}

// NewRegistry builds a registry over the given primitives.
func NewRegistry(prims ...Primitive) *Registry {
	r := &Registry{prims: make(map[string]Primitive, len(prims))}
	for _, p := range prims {
		r.prims[p.ID()] = p
	}
	return r
}

// Lookup resolves a primitive id.
func (r *Registry) Lookup(id string) (Primitive, error) {
	p, ok := r.prims[id]
	if !ok {
		return nil, fmt.Errorf("unknown primitive %q", id)
	}
	return p, nil
}

// IsPrimitiveID reports whether id names a built-in primitive.
func (r *Registry) IsPrimitiveID(id string) bool {
	_, ok := r.prims[id]
	return ok
}

func str(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func num(params map[string]interface{}, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
