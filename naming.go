package apihub

import (
	"path"
	"strings"
)

const maxFunctionNameLength = 64

// FunctionPostfix derives a function name suffix from a handler path, e.g.
// packages/functions/src/v1/customers/[idOrUsername]/games/GET.handler
// becomes GET-v1-customers-ID-games.
func FunctionPostfix(handler string) string {
	handler = strings.ReplaceAll(handler, "\\", "/")
	dir, file := path.Split(handler)
	name := strings.TrimSuffix(file, path.Ext(file))

	segments := strings.Split(strings.Trim(dir, "/"), "/")
	// the first three segments are the package root, e.g. packages/functions/src
	if len(segments) > 3 {
		segments = segments[3:]
	} else {
		segments = nil
	}

	postfix := strings.ToUpper(name)
	if rel := strings.Join(segments, "-"); rel != "" {
		postfix = postfix + "-" + rel
	}
	return replaceBracketParts(postfix, "ID")
}

// FunctionName builds <stage>-<app>-<postfix>, cut to 64 characters.
func FunctionName(stage, app, handler string) string {
	name := stage + "-" + app + "-" + FunctionPostfix(handler)
	if len(name) > maxFunctionNameLength {
		name = name[:maxFunctionNameLength]
	}
	return name
}

var bracketPairs = [][2]string{{"[", "]"}, {"<", ">"}, {"{", "}"}, {"(", ")"}}

func replaceBracketParts(route, replacement string) string {
	parts := strings.Split(route, "-")
	for i, part := range parts {
		for _, pair := range bracketPairs {
			if strings.HasPrefix(part, pair[0]) && strings.HasSuffix(part, pair[1]) {
				parts[i] = replacement
				break
			}
		}
	}
	return strings.Join(parts, "-")
}
