package rerank

import (
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/papercomputeco/folio/pkg/llm"
)

// Result is the outcome of parsing judge output: Parsed or ParseFailed.
type Result interface {
	isResult()
}

// Parsed holds the zero-based candidate indices the judge picked, in the
// judge's order.
type Parsed struct {
	Indices       []int
	Justification string
}

// ParseFailed explains why judge output was unusable.
type ParseFailed struct {
	Reason string
}

func (Parsed) isResult()      {}
func (ParseFailed) isResult() {}

const defaultJustification = "No justification provided."

var (
	selectedKeys      = []string{"selected", "selected_pages", "páginas_selecionadas", "paginas_selecionadas"}
	justificationKeys = []string{"justification", "justificativa"}
	numberPattern     = regexp.MustCompile(`\d+`)
)

// Parse reads judge output for a list of n candidates. It accepts a JSON
// object or labelled lines ("selected: 2, 5" / "justification: ...").
// Candidate numbers are 1-based; unknown, duplicate and out-of-range numbers
// are dropped.
func Parse(output string, n int) Result {
	output = strings.TrimSpace(output)
	if output == "" {
		return ParseFailed{Reason: "empty output"}
	}

	numbers, justification, ok := parseJSON(output)
	if !ok {
		numbers, justification, ok = parseLines(output)
	}
	if !ok {
		return ParseFailed{Reason: "no selection found"}
	}

	indices := make([]int, 0, len(numbers))
	seen := make(map[int]struct{}, len(numbers))
	for _, num := range numbers {
		if num < 1 || num > n {
			continue
		}
		if _, dup := seen[num]; dup {
			continue
		}
		seen[num] = struct{}{}
		indices = append(indices, num-1)
	}
	if len(indices) == 0 {
		return ParseFailed{Reason: "no valid candidate numbers"}
	}

	justification = strings.TrimSpace(justification)
	if justification == "" {
		justification = defaultJustification
	}
	return Parsed{Indices: indices, Justification: justification}
}

func parseJSON(output string) ([]int, string, bool) {
	raw := llm.ExtractJSON(output)
	if !strings.HasPrefix(raw, "{") {
		return nil, "", false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, "", false
	}
	lowered := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		lowered[strings.ToLower(k)] = v
	}

	var (
		numbers []int
		found   bool
	)
	for _, key := range selectedKeys {
		if v, ok := lowered[key]; ok {
			numbers, found = jsonNumbers(v), true
			break
		}
	}
	if !found {
		return nil, "", false
	}

	var justification string
	for _, key := range justificationKeys {
		if v, ok := lowered[key]; ok {
			_ = json.Unmarshal(v, &justification)
			break
		}
	}
	return numbers, justification, true
}

// jsonNumbers accepts [1, 2], ["1", "2"], 3 or "1, 2".
func jsonNumbers(v json.RawMessage) []int {
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		items = []json.RawMessage{v}
	}

	var out []int
	for _, item := range items {
		var num int
		if err := json.Unmarshal(item, &num); err == nil {
			out = append(out, num)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, atois(numberPattern.FindAllString(s, -1))...)
		}
	}
	return out
}

func parseLines(output string) ([]int, string, bool) {
	var (
		numbers       []int
		justification string
		found         bool
	)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*# "))
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))

		switch {
		case slices.Contains(selectedKeys, label):
			numbers = atois(numberPattern.FindAllString(value, -1))
			found = true
		case slices.Contains(justificationKeys, label):
			justification = value
		}
	}
	return numbers, justification, found
}

func atois(ss []string) []int {
	out := make([]int, 0, len(ss))
	for _, s := range ss {
		if n, err := strconv.Atoi(s); err == nil {
			out = append(out, n)
		}
	}
	return out
}
