// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package replacements

import (
	"regexp"
	"strconv"
	"strings"
)

// conditionPattern parses the condition head of a logic snippet:
// [if(left=right)] with operators = != < > % (contains).
var conditionPattern = regexp.MustCompile(`^\[if\((.*?)(!=|=|<|>|%)(.*?)\)\]`)

// maxLogicPasses bounds nested snippet resolution the same way inclusion
// expansion is bounded.
const maxLogicPasses = 100

// EvaluateTemplate resolves inline logic snippets of the form
// [if({var}=value)]then[else]otherwise[endif]. Snippets may nest; the
// innermost snippet resolves first. Conditions referencing a variable that
// survived substitution unresolved evaluate as false. Malformed snippets
// (no matching [endif]) are left verbatim.
func (r *DefaultReplacer) EvaluateTemplate(input string) string {
	result := input

	for pass := 0; pass < maxLogicPasses; pass++ {
		// The last [if( in the string opens an innermost snippet: it can
		// contain no further nesting, so the first [endif] after it is its
		// own terminator.
		start := strings.LastIndex(result, "[if(")
		if start < 0 {
			break
		}

		rest := result[start:]
		end := strings.Index(rest, "[endif]")
		if end < 0 {
			break
		}

		snippet := rest[:end+len("[endif]")]
		replacement := evaluateSnippet(snippet)
		if replacement == snippet {
			break
		}
		result = result[:start] + replacement + result[start+len(snippet):]
	}

	return result
}

// evaluateSnippet resolves a single non-nested [if]...[endif] snippet.
// Returns the snippet unchanged when the condition head cannot be parsed.
func evaluateSnippet(snippet string) string {
	head := conditionPattern.FindStringSubmatch(snippet)
	if head == nil {
		return snippet
	}

	body := snippet[len(head[0]) : len(snippet)-len("[endif]")]
	thenBody, elseBody, _ := strings.Cut(body, "[else]")

	if evaluateCondition(strings.TrimSpace(head[1]), head[2], strings.TrimSpace(head[3])) {
		return thenBody
	}
	return elseBody
}

// evaluateCondition compares the two operands. Placeholders that survived
// substitution compare as empty, so conditions on unknown variables fail
// closed.
func evaluateCondition(left, op, right string) bool {
	if strings.HasPrefix(left, "{") && strings.HasSuffix(left, "}") {
		left = ""
	}
	if strings.HasPrefix(right, "{") && strings.HasSuffix(right, "}") {
		right = ""
	}

	switch op {
	case "=":
		return strings.EqualFold(left, right)
	case "!=":
		return !strings.EqualFold(left, right)
	case "<":
		if lf, rf, ok := numericOperands(left, right); ok {
			return lf < rf
		}
		return left < right
	case ">":
		if lf, rf, ok := numericOperands(left, right); ok {
			return lf > rf
		}
		return left > right
	case "%":
		return strings.Contains(strings.ToLower(left), strings.ToLower(right))
	default:
		return false
	}
}

// numericOperands parses both operands as numbers. Ordered comparisons go
// numeric when both sides parse, so 10 > 9; otherwise string order applies.
func numericOperands(left, right string) (float64, float64, bool) {
	lf, errL := strconv.ParseFloat(left, 64)
	rf, errR := strconv.ParseFloat(right, 64)
	return lf, rf, errL == nil && errR == nil
}
