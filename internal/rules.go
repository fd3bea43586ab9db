package internal

import (
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"strings"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"
	"gopkg.in/yaml.v3"
)

// EmitList is one or more topics. In YAML it may be a string or a list.
type EmitList []string

// UnmarshalYAML accepts a scalar or a sequence.
func (e *EmitList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var topic string
		if err := node.Decode(&topic); err != nil {
			return err
		}
		*e = EmitList{topic}
		return nil
	case yaml.SequenceNode:
		var topics []string
		if err := node.Decode(&topics); err != nil {
			return err
		}
		*e = EmitList(topics)
		return nil
	default:
		return fmt.Errorf("emit must be a string or a list")
	}
}

type Rule struct {
	When    string   `yaml:"when"`
	Emit    EmitList `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is a topic to publish to and the drivers to publish with. Empty
// drivers means every configured driver.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    EmitList
	drivers []string
	expr    *govaluate.EvaluableExpression
	paths   map[string]string
}

// RuleEngine evaluates compiled rules against events.
type RuleEngine struct {
	rules  []compiledRule
	strict bool
	logger *log.Logger
}

var ruleFunctions = map[string]govaluate.ExpressionFunction{
	"contains": ruleContains,
	"like":     ruleLike,
}

func NewRuleEngine(cfg RulesConfig) (*RuleEngine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = NewLogger("rules")
	}
	rules := make([]compiledRule, 0, len(cfg.Rules))
	for i, rule := range cfg.Rules {
		rewritten, paths := rewritePaths(rule.When)
		expr, err := govaluate.NewEvaluableExpressionWithFunctions(rewritten, ruleFunctions)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{emit: rule.Emit, drivers: rule.Drivers, expr: expr, paths: paths})
	}

	return &RuleEngine{rules: rules, strict: cfg.Strict, logger: logger}, nil
}

// Evaluate returns one match per emitted topic of every rule whose
// condition is true for event.
func (r *RuleEngine) Evaluate(event Event) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	object := event.RawObject
	if object == nil && len(event.RawPayload) > 0 {
		_ = json.Unmarshal(event.RawPayload, &object)
	}
	data := event.Data
	if data == nil {
		if m, ok := object.(map[string]interface{}); ok {
			data = Flatten(m)
		}
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		params := ruleParams{data: data, object: object, paths: rule.paths, strict: r.strict}
		result, err := rule.expr.Eval(params)
		if err != nil {
			r.logger.Printf("rule eval failed: %v", err)
			continue
		}
		ok, _ := result.(bool)
		if !ok {
			continue
		}
		for _, topic := range rule.emit {
			matches = append(matches, RuleMatch{Topic: topic, Drivers: rule.drivers})
		}
	}
	return matches
}

// ruleParams resolves plain names from the flattened data and rewritten
// paths with jsonpath against the raw object.
type ruleParams struct {
	data   map[string]interface{}
	object interface{}
	paths  map[string]string
	strict bool
}

func (p ruleParams) Get(name string) (interface{}, error) {
	if path, ok := p.paths[name]; ok {
		value, err := jsonpath.Get(path, p.object)
		if err != nil {
			if p.strict {
				return nil, fmt.Errorf("path %s: %w", path, err)
			}
			return nil, nil
		}
		return value, nil
	}
	if value, ok := p.data[name]; ok {
		return value, nil
	}
	if p.strict {
		return nil, fmt.Errorf("no parameter %q", name)
	}
	return nil, nil
}

// rewritePaths replaces dotted or indexed names outside string literals
// with generated parameter names and returns their jsonpath expressions.
func rewritePaths(expr string) (string, map[string]string) {
	paths := map[string]string{}
	var out strings.Builder
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			j := i + 1
			for j < len(expr) && expr[j] != c {
				if expr[j] == '\\' {
					j++
				}
				j++
			}
			if j < len(expr) {
				j++
			}
			out.WriteString(expr[i:j])
			i = j
		case c == '$' || c == '_' || isLetter(c):
			j := i + 1
			for j < len(expr) && isPathChar(expr[j]) {
				j++
			}
			token := expr[i:j]
			if c == '$' || strings.ContainsAny(token, ".[") {
				name := fmt.Sprintf("jsonpath_%d", len(paths))
				if c == '$' {
					paths[name] = token
				} else {
					paths[name] = "$." + token
				}
				out.WriteString(name)
			} else {
				out.WriteString(token)
			}
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < len(expr) && (expr[j] == '.' || (expr[j] >= '0' && expr[j] <= '9')) {
				j++
			}
			out.WriteString(expr[i:j])
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), paths
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isPathChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '[' || c == ']' || c == '$'
}

func ruleContains(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("contains expects 2 arguments")
	}
	switch haystack := args[0].(type) {
	case string:
		needle, _ := args[1].(string)
		return strings.Contains(haystack, needle), nil
	case []interface{}:
		for _, item := range haystack {
			if reflect.DeepEqual(item, args[1]) {
				return true, nil
			}
		}
		return false, nil
	case []string:
		needle, _ := args[1].(string)
		for _, item := range haystack {
			if item == needle {
				return true, nil
			}
		}
		return false, nil
	case nil:
		return false, nil
	default:
		return nil, fmt.Errorf("contains: unsupported type %T", args[0])
	}
}

// ruleLike matches SQL LIKE patterns: % is any run, _ is one character.
func ruleLike(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("like expects 2 arguments")
	}
	value, ok := args[0].(string)
	if !ok {
		return false, nil
	}
	pattern, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("like: pattern must be a string")
	}
	return likeMatch(value, pattern), nil
}

func likeMatch(value, pattern string) bool {
	if pattern == "" {
		return value == ""
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(value); i++ {
			if likeMatch(value[i:], pattern[1:]) {
				return true
			}
		}
		return false
	case '_':
		return value != "" && likeMatch(value[1:], pattern[1:])
	default:
		return value != "" && value[0] == pattern[0] && likeMatch(value[1:], pattern[1:])
	}
}
