package avro

import "strings"

// resolveName implements spec.md §4.1's name resolution rule: "a simple
// name inherits the enclosing namespace unless it contains a dot", applied
// when a named type declares itself ("name"/"namespace" pair).
func resolveName(simpleOrFQN, enclosingNamespace string) (fqn, namespace string) {
	if strings.Contains(simpleOrFQN, ".") {
		idx := strings.LastIndexByte(simpleOrFQN, '.')
		return simpleOrFQN, simpleOrFQN[:idx]
	}
	if enclosingNamespace == "" {
		return simpleOrFQN, ""
	}
	return enclosingNamespace + "." + simpleOrFQN, enclosingNamespace
}

// resolveReference implements the Open Question resolution spec.md §9
// prescribes for a bare (unqualified, no dot) named-type reference: "try
// the enclosing namespace, then the null namespace".
func resolveReference(ref, enclosingNamespace string) []string {
	if strings.Contains(ref, ".") {
		return []string{ref}
	}
	candidates := make([]string, 0, 2)
	if enclosingNamespace != "" {
		candidates = append(candidates, enclosingNamespace+"."+ref)
	}
	candidates = append(candidates, ref)
	return candidates
}
