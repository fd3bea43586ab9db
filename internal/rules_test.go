package internal

import (
	"io"
	"log"
	"testing"
)

func quietRules(cfg RulesConfig) RulesConfig {
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

// TestRuleEngineEvaluate tests that the rule engine correctly evaluates a simple rule.
func TestRuleEngineEvaluate(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `result == "applied"`, Emit: EmitList{"jira.applied"}},
			{When: `result != "applied" && token == "close"`, Emit: EmitList{"jira.close_failed"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "push",
		Name:       EventActionApplied,
		RawPayload: []byte(`{"result":"applied","token":"close"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(matches))
	}
	if matches[0].Topic != "jira.applied" {
		t.Fatalf("expected topic jira.applied, got %q", matches[0].Topic)
	}
}

// TestRuleEngineEvaluateMissingField tests that the rule engine does not match a rule with a missing field.
func TestRuleEngineEvaluateMissingField(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing == true", Emit: EmitList{"never"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no topics, got %d", len(matches))
	}
}

// TestRuleEngineWithDrivers tests that matches carry the rule's drivers and every emitted topic.
func TestRuleEngineWithDrivers(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `result == "user_not_found"`, Emit: EmitList{"jira.unmapped", "ops.alerts"}, Drivers: []string{"amqp", "http"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"result":"user_not_found"}`)})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[1].Topic != "ops.alerts" || len(matches[1].Drivers) != 2 {
		t.Fatalf("unexpected match: %+v", matches[1])
	}
}

// TestRuleEngineJSONPathDot tests that the rule engine correctly handles a JSONPath expression with dot notation.
func TestRuleEngineJSONPathDot(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `$.commit.author == "dev"`, Emit: EmitList{"dev.commits"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"commit":{"author":"dev"}}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineJSONPathIndex tests that the rule engine correctly handles a JSONPath expression with an index.
func TestRuleEngineJSONPathIndex(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `$.messages[0] == "Issue Does Not Exist"`, Emit: EmitList{"jira.missing"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"messages":["Issue Does Not Exist","other"]}`)})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineBareJSONPath tests that dotted and indexed names without a leading $ resolve as paths.
func TestRuleEngineBareJSONPath(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `result == "applied" && commit.author == "dev"`, Emit: EmitList{"a"}},
			{When: `messages[1] == "second"`, Emit: EmitList{"b"}},
			{When: `token == "x.y"`, Emit: EmitList{"literal"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{RawPayload: []byte(`{"result":"applied","token":"x.y","commit":{"author":"dev"},"messages":["first","second"]}`)}
	matches := engine.Evaluate(event)
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that the rule engine in strict mode does not match a rule with a missing field.
func TestRuleEngineStrictMissing(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing_field == true", Emit: EmitList{"never"}},
			{When: "$.missing.path == true", Emit: EmitList{"never"}},
		},
		Strict: true,
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	matches := engine.Evaluate(Event{RawPayload: []byte(`{"result":"applied"}`)})
	if len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `contains(messages, "no permission")`, Emit: EmitList{"perm"}},
			{When: `like(issue_key, "OPS-%")`, Emit: EmitList{"ops"}},
			{When: `like(issue_key, "DEV-_")`, Emit: EmitList{"never"}},
		},
	}

	engine, err := NewRuleEngine(quietRules(cfg))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{RawPayload: []byte(`{"messages":["no permission"],"issue_key":"OPS-12"}`)}
	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestNewRuleEngineRejectsBadExpression tests that invalid expressions fail to compile.
func TestNewRuleEngineRejectsBadExpression(t *testing.T) {
	_, err := NewRuleEngine(quietRules(RulesConfig{Rules: []Rule{{When: "result ==", Emit: EmitList{"x"}}}}))
	if err == nil {
		t.Fatalf("expected compile error")
	}
}

// TestOutcomeEventRules tests rules against a reconciliation outcome event.
func TestOutcomeEventRules(t *testing.T) {
	event, err := NewOutcomeEvent("github", "req-1", EventActionFailed, Outcome{
		CommitID: "abc",
		Email:    "dev@example.com",
		User:     "dev",
		IssueKey: "ABC-1",
		Token:    "close",
		Result:   "transition_invalid",
		Messages: []string{"resolution is required"},
	})
	if err != nil {
		t.Fatalf("new outcome event: %v", err)
	}
	if event.Data["issue_key"] != "ABC-1" || event.Data["messages[0]"] != "resolution is required" {
		t.Fatalf("unexpected flattened data: %v", event.Data)
	}

	engine, err := NewRuleEngine(quietRules(RulesConfig{Rules: []Rule{
		{When: `result != "applied" && user == "dev"`, Emit: EmitList{"jira.failed"}},
	}}))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if matches := engine.Evaluate(event); len(matches) != 1 || matches[0].Topic != "jira.failed" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}
