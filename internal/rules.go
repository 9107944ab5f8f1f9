package internal

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// Rule routes processed deliveries: when the expression evaluates to true,
// the emit topics are published, optionally restricted to a subset of the
// configured drivers.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// EmitList holds the topics a rule emits to.
type EmitList []string

// UnmarshalYAML accepts both `emit: topic` and `emit: [a, b]`.
func (e *EmitList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := value.Decode(&topic); err != nil {
			return err
		}
		*e = EmitList{topic}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := value.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("emit: expected string or list, got yaml node kind %d", value.Kind)
	}
}

// RuleMatch is one topic a matched rule emits to, with the drivers it is
// restricted to. Empty Drivers means every configured driver.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	when    string
	emit    EmitList
	drivers []string
	expr    *govaluate.EvaluableExpression
	vars    []string
	paths   map[string]string
}

// RuleEngine evaluates routing rules against processed deliveries.
// Expressions see the classification fields under flat names (provider,
// event, repository, branch, the interest flags, changed_files), every
// flattened payload leaf under its dotted key, and $.-prefixed JSONPath
// lookups against the raw payload.
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

// NewRuleEngine compiles the configured rules. Dotted, indexed and
// $.-prefixed path references are rewritten into plain variables before
// compilation; the original path is kept alongside for resolution at
// evaluation time.
func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger("rules")
	}

	engine := &RuleEngine{strict: cfg.Strict, logger: logger}
	for i, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, rule.When, err)
		}
		engine.rules = append(engine.rules, compiledRule{
			when:    rule.When,
			emit:    rule.Emit,
			drivers: rule.Drivers,
			expr:    expr,
			vars:    expr.Vars(),
			paths:   paths,
		})
	}
	return engine, nil
}

// Empty reports whether no rules are configured, which sends every processed
// delivery to the default topic instead.
func (r *RuleEngine) Empty() bool {
	return len(r.rules) == 0
}

// Evaluate returns one match per emitted topic across all rules that hold
// for the event. A rule referencing values the delivery does not carry never
// matches; with strict mode on, that and any evaluation error is logged.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if len(r.rules) == 0 {
		return nil
	}

	payload, flat := decodePayload(event.RawPayload)
	base := baseParams(event)

	var matches []RuleMatch
	for _, rule := range r.rules {
		params, ok := r.resolveVars(rule, base, flat, payload)
		if !ok {
			continue
		}
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			if r.strict {
				r.logger.Printf("rule %q eval failed: %v", rule.when, err)
			}
			continue
		}
		matched, _ := result.(bool)
		if !matched {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

func (r *RuleEngine) resolveVars(rule compiledRule, base, flat map[string]interface{}, payload interface{}) (map[string]interface{}, bool) {
	params := make(map[string]interface{}, len(rule.vars))
	for _, name := range rule.vars {
		lookup := name
		if original, ok := rule.paths[name]; ok {
			lookup = original
		}
		value, found := resolveValue(lookup, base, flat, payload)
		if !found {
			if r.strict {
				r.logger.Printf("rule %q: no value for %q in delivery", rule.when, lookup)
				return nil, false
			}
			value = nil
		}
		params[name] = value
	}
	return params, true
}

func resolveValue(name string, base, flat map[string]interface{}, payload interface{}) (interface{}, bool) {
	if strings.HasPrefix(name, "$.") {
		if payload == nil {
			return nil, false
		}
		value, err := jsonpath.Get(name, payload)
		if err != nil {
			return nil, false
		}
		return value, true
	}
	if value, ok := base[name]; ok {
		return value, true
	}
	if value, ok := flat[name]; ok {
		return value, true
	}
	return nil, false
}

func decodePayload(raw []byte) (interface{}, map[string]interface{}) {
	if len(raw) == 0 {
		return nil, nil
	}
	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil
	}
	if object, ok := payload.(map[string]interface{}); ok {
		return payload, Flatten(object)
	}
	return payload, nil
}

func baseParams(event Event) map[string]interface{} {
	files := make([]interface{}, len(event.ChangedFiles))
	for i, path := range event.ChangedFiles {
		files[i] = path
	}
	return map[string]interface{}{
		"provider":            event.Provider,
		"event":               event.Name,
		"delivery_id":         event.DeliveryID,
		"repository":          event.Repository,
		"branch":              event.Branch,
		"changed_files":       files,
		"frontend_asset":      event.Interest.FrontendAsset,
		"dependency_manifest": event.Interest.DependencyManifest,
		"config_file":         event.Interest.ConfigFile,
		"container_file":      event.Interest.ContainerFile,
	}
}

// ruleFunctions are the helpers available inside rule expressions.
var ruleFunctions = map[string]govaluate.ExpressionFunction{
	// contains(haystack, needle): list membership, or substring when the
	// haystack is a string.
	"contains": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("contains expects 2 arguments, got %d", len(args))
		}
		needle := fmt.Sprintf("%v", args[1])
		switch haystack := args[0].(type) {
		case []interface{}:
			for _, item := range haystack {
				if fmt.Sprintf("%v", item) == needle {
					return true, nil
				}
			}
			return false, nil
		case string:
			return strings.Contains(haystack, needle), nil
		case nil:
			return false, nil
		default:
			return false, nil
		}
	},
	// like(value, pattern): SQL-style pattern with % wildcards.
	"like": func(args ...interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("like expects 2 arguments, got %d", len(args))
		}
		value, _ := args[0].(string)
		pattern, _ := args[1].(string)
		return likeMatch(value, pattern), nil
	},
}

func likeMatch(value, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return value == pattern
	}
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return strings.HasSuffix(value, parts[len(parts)-1])
}

// pathVarPrefix names the synthetic variables path references are rewritten
// to. The expression parser reads dotted names as struct accessors and
// cannot read $ or bracketed indexes at all, so paths are substituted out
// before compilation and resolved by original name at evaluation.
const pathVarPrefix = "pathvar"

func rewritePaths(expression string) (string, map[string]string) {
	var out strings.Builder
	paths := make(map[string]string)
	runes := []rune(expression)

	bind := func(original string) string {
		name := pathVarPrefix + strconv.Itoa(len(paths))
		paths[name] = original
		return name
	}

	for i := 0; i < len(runes); {
		ch := runes[i]
		switch {
		case ch == '\'' || ch == '"':
			// Quoted literal: copy verbatim, honoring escapes.
			j := i + 1
			for j < len(runes) {
				if runes[j] == '\\' && j+1 < len(runes) {
					j += 2
					continue
				}
				if runes[j] == ch {
					j++
					break
				}
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case ch == '[':
			// Explicitly escaped parameter: copy verbatim.
			j := i + 1
			for j < len(runes) && runes[j] != ']' {
				j++
			}
			if j < len(runes) {
				j++
			}
			out.WriteString(string(runes[i:j]))
			i = j
		case ch == '$' && i+1 < len(runes) && runes[i+1] == '.':
			j := consumePath(runes, i+2)
			out.WriteString(bind(string(runes[i:j])))
			i = j
		case isIdentStart(ch):
			j := consumePath(runes, i)
			token := string(runes[i:j])
			if strings.ContainsAny(token, ".[") {
				out.WriteString(bind(token))
			} else {
				out.WriteString(token)
			}
			i = j
		default:
			out.WriteRune(ch)
			i++
		}
	}
	return out.String(), paths
}

// consumePath reads identifier segments joined by dots, with optional
// numeric [i] indexes, starting at start. It stops before anything that
// cannot extend the path.
func consumePath(runes []rune, start int) int {
	i := start
	for i < len(runes) {
		ch := runes[i]
		if isIdentPart(ch) {
			i++
			continue
		}
		if ch == '.' && i+1 < len(runes) && isIdentStart(runes[i+1]) {
			i++
			continue
		}
		if ch == '[' && i+1 < len(runes) && isDigit(runes[i+1]) {
			j := i + 1
			for j < len(runes) && isDigit(runes[j]) {
				j++
			}
			if j < len(runes) && runes[j] == ']' {
				i = j + 1
				continue
			}
			return i
		}
		break
	}
	return i
}

func isIdentStart(ch rune) bool { return ch == '_' || unicode.IsLetter(ch) }

func isIdentPart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }
