package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kpath-ai/kpath/domain/registry"
)

// nameWeight is how many times an entity's name is repeated in its
// embedding text. Name matches should outrank description matches.
const nameWeight = 3

// ComposeService deterministically assembles the text blob embedded for a
// service: the name three times, the description, each capability
// description, then each domain, space-separated. Absent fields are skipped.
// Any change to this composition requires a full reindex.
func ComposeService(svc registry.Service) string {
	parts := make([]string, 0, 8)
	for i := 0; i < nameWeight; i++ {
		appendPart(&parts, svc.Name())
	}
	appendPart(&parts, svc.Description())
	for _, cap := range svc.Capabilities() {
		appendPart(&parts, cap.Description())
	}
	for _, domain := range svc.Domains() {
		appendPart(&parts, domain)
	}
	return strings.Join(parts, " ")
}

// ComposeTool deterministically assembles the text blob embedded for a tool:
// the tool name three times, the description, the sorted example keys (or
// the example count for list-shaped examples), the top-level keys of the
// input and output schemas, then the parent service name once.
func ComposeTool(tool registry.Tool) string {
	parts := make([]string, 0, 8)
	for i := 0; i < nameWeight; i++ {
		appendPart(&parts, tool.Name())
	}
	appendPart(&parts, tool.Description())

	examples := tool.Examples()
	if keys := examples.Keys(); keys != nil {
		parts = append(parts, keys...)
	} else if n := examples.Count(); n > 0 {
		parts = append(parts, strconv.Itoa(n))
	}

	parts = append(parts, sortedKeys(tool.InputSchema())...)
	parts = append(parts, sortedKeys(tool.OutputSchema())...)

	appendPart(&parts, tool.ServiceName())
	return strings.Join(parts, " ")
}

func appendPart(parts *[]string, s string) {
	if s != "" {
		*parts = append(*parts, s)
	}
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
