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

package signing

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format selects how a signature line is embedded in an artifact.
type Format int

const (
	// FormatMarkdown wraps the signature in an HTML comment on line 1.
	FormatMarkdown Format = iota
	// FormatCode prefixes the signature with the language's line-comment
	// token, on line 1 or directly after a shebang.
	FormatCode
	// FormatJSON stores the signature in a top-level _signature field.
	FormatJSON
	// FormatTOML puts a "# rye:signed:..." comment on line 1. Lockfiles
	// and trusted-key documents use this.
	FormatTOML
)

// commentPrefixes maps file extensions to line-comment tokens for
// FormatCode. Overridable per-space via the signing config file.
var commentPrefixes = map[string]string{
	".py":   "#",
	".sh":   "#",
	".bash": "#",
	".rb":   "#",
	".pl":   "#",
	".yaml": "#",
	".yml":  "#",
	".toml": "#",
	".go":   "//",
	".js":   "//",
	".ts":   "//",
	".rs":   "//",
	".c":    "//",
	".cpp":  "//",
	".java": "//",
	".sql":  "--",
	".lua":  "--",
}

// SetCommentPrefix registers or overrides the comment token for an
// extension (loaded from the signing configuration file at startup).
func SetCommentPrefix(ext, prefix string) {
	commentPrefixes[ext] = prefix
}

// CommentPrefix returns the line-comment token for a file path.
func CommentPrefix(path string) (string, error) {
	ext := filepath.Ext(path)
	prefix, ok := commentPrefixes[ext]
	if !ok {
		return "", fmt.Errorf("no comment prefix configured for extension %q", ext)
	}
	return prefix, nil
}

// DetectFormat chooses a signature format from a file path.
func DetectFormat(path string) Format {
	switch filepath.Ext(path) {
	case ".md", ".markdown", ".html":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	case ".toml", ".lock":
		return FormatTOML
	default:
		return FormatCode
	}
}

const (
	mdOpen  = "<!-- "
	mdClose = " -->"
)

// firstLine splits content into its first line and the remainder
// (remainder includes no leading newline).
func firstLine(content string) (string, string) {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i], content[i+1:]
	}
	return content, ""
}

func stripShebang(content string) string {
	if strings.HasPrefix(content, "#!") {
		_, rest := firstLine(content)
		return rest
	}
	return content
}

// isSignatureLine reports whether a line carries a rye:signed value under
// any comment wrapping.
func isSignatureLine(line string) bool {
	return strings.Contains(line, Marker+":")
}

// ExtractSignature pulls the signature value out of signed content.
// Returns the parsed signature and the content with the signature removed.
// A nil signature means the content is unsigned.
func ExtractSignature(format Format, content string) (*Signature, string, error) {
	switch format {
	case FormatMarkdown, FormatTOML, FormatCode:
		body := content
		shebang := ""
		if format == FormatCode && strings.HasPrefix(body, "#!") {
			shebang, body = firstLine(body)
			shebang += "\n"
		}
		line, rest := firstLine(body)
		if !isSignatureLine(line) {
			return nil, content, nil
		}
		value := line
		value = strings.TrimSuffix(value, mdClose)
		if i := strings.Index(value, Marker+":"); i >= 0 {
			value = value[i:]
		}
		sig, err := ParseSignature(value)
		if err != nil {
			return nil, content, err
		}
		return sig, shebang + rest, nil
	case FormatJSON:
		// JSON signatures live in a _signature field; callers working
		// with structured documents extract the field themselves. For
		// raw text we fall back to a line scan.
		for _, ln := range strings.Split(content, "\n") {
			if i := strings.Index(ln, Marker+":"); i >= 0 {
				value := ln[i:]
				value = strings.TrimRight(value, `", `)
				sig, err := ParseSignature(value)
				if err != nil {
					return nil, content, err
				}
				return sig, content, nil
			}
		}
		return nil, content, nil
	}
	return nil, content, fmt.Errorf("unknown signature format %d", format)
}

// StripSignature removes any existing signature line, returning canonical
// content. Shebang lines are preserved here; ContentHash strips them
// separately.
func StripSignature(format Format, content string) string {
	sig, stripped, err := ExtractSignature(format, content)
	if err != nil || sig == nil {
		// An unparsable signature line still must not be hashed.
		line, rest := firstLine(content)
		if isSignatureLine(line) {
			return rest
		}
		return content
	}
	return stripped
}

// ApplySignature embeds a signature into content, replacing any existing
// signature line. filePath selects the comment prefix for FormatCode.
func ApplySignature(format Format, content, filePath string, sig *Signature) (string, error) {
	stripped := StripSignature(format, content)
	switch format {
	case FormatMarkdown:
		return mdOpen + sig.String() + mdClose + "\n" + stripped, nil
	case FormatTOML:
		return "# " + sig.String() + "\n" + stripped, nil
	case FormatCode:
		prefix, err := CommentPrefix(filePath)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(stripped, "#!") {
			shebang, rest := firstLine(stripped)
			return shebang + "\n" + prefix + " " + sig.String() + "\n" + rest, nil
		}
		return prefix + " " + sig.String() + "\n" + stripped, nil
	case FormatJSON:
		return "", fmt.Errorf("JSON artifacts embed signatures via their _signature field")
	}
	return "", fmt.Errorf("unknown signature format %d", format)
}
