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

package anthropic

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/lillux/rye/pkg/types"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// encoder lazily loads the cl100k_base tokenizer. Anthropic's tokenizer
// is not public; cl100k_base tracks it closely enough for budget
// estimation.
func encoder() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	return enc
}

// EstimateText estimates the token count of one text.
func EstimateText(text string) int {
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	// Tokenizer data unavailable; approximate at 4 chars per token.
	return len(text) / 4
}

// EstimateTokens estimates the prompt token count of a full request.
func EstimateTokens(system string, messages []types.Message) int {
	total := EstimateText(system)
	for _, msg := range messages {
		total += EstimateText(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateText(tc.Name)
			if blob, err := json.Marshal(tc.Input); err == nil {
				total += EstimateText(string(blob))
			}
		}
	}
	return total
}
