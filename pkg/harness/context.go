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

package harness

import (
	"fmt"
	"strings"

	"github.com/lillux/rye/internal/log"
	"github.com/lillux/rye/pkg/directive"
	"go.uber.org/zap"
)

// KnowledgeLoader reads one knowledge item's body by id, enforcing
// signature verification and load permissions.
type KnowledgeLoader func(itemID string) (string, error)

// InjectedContext is the rendered knowledge for one thread start.
type InjectedContext struct {
	System string
	Before string
	After  string
}

// BuildContext loads and renders a directive's context block. Each item
// renders inside a knowledge element carrying its id, so the model can
// attribute injected material. Items on the suppress list are skipped
// even when another list names them. Load failures skip the item with a
// warning rather than failing the thread.
func (h *Harness) BuildContext(block *directive.ContextBlock, load KnowledgeLoader) *InjectedContext {
	if block == nil {
		return &InjectedContext{}
	}
	suppressed := make(map[string]bool, len(block.Suppress))
	for _, id := range block.Suppress {
		suppressed[id] = true
	}
	return &InjectedContext{
		System: h.renderItems(block.System, suppressed, load),
		Before: h.renderItems(block.Before, suppressed, load),
		After:  h.renderItems(block.After, suppressed, load),
	}
}

func (h *Harness) renderItems(ids []string, suppressed map[string]bool, load KnowledgeLoader) string {
	var b strings.Builder
	for _, id := range ids {
		if suppressed[id] {
			continue
		}
		body, err := load(id)
		if err != nil {
			log.Warn("failed to load context knowledge",
				zap.String("thread_id", h.ThreadID),
				zap.String("item_id", id),
				zap.Error(err),
			)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<knowledge id=%q>\n%s\n</knowledge>", id, strings.TrimSpace(body))
	}
	return b.String()
}
