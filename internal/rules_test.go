package internal

import (
	"testing"

	"gopkg.in/yaml.v3"
)

// TestRuleEngineEvaluate tests that the rule engine evaluates simple payload
// field rules.
func TestRuleEngineEvaluate(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "ref == \"refs/heads/main\"", Emit: EmitList{"push.main"}},
			{When: "deleted == true && forced == true", Emit: EmitList{"push.forced"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"ref":"refs/heads/main","deleted":false,"forced":false}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Topic != "push.main" {
		t.Fatalf("expected topic push.main, got %q", matches[0].Topic)
	}
}

// TestRuleEngineEvaluateMissingField tests that a rule referencing an absent
// field does not match.
func TestRuleEngineEvaluateMissingField(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing == true", Emit: EmitList{"never"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

// TestRuleEngineClassificationParams tests that the interest flags and
// delivery identity are visible to expressions as flat parameters.
func TestRuleEngineClassificationParams(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "dependency_manifest == true && branch == \"main\"", Emit: EmitList{"deps.changed"}},
			{When: "container_file == true", Emit: EmitList{"containers.changed"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		Repository: "acme/site",
		Branch:     "main",
		Interest:   Interest{DependencyManifest: true},
		RawPayload: []byte(`{"ref":"refs/heads/main"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Topic != "deps.changed" {
		t.Fatalf("expected topic deps.changed, got %q", matches[0].Topic)
	}
}

// TestRuleEngineWithDrivers tests that a matched rule carries its driver
// restriction through.
func TestRuleEngineWithDrivers(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "branch == \"main\"", Emit: EmitList{"push.main"}, Drivers: []string{"amqp", "http"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{Provider: "github", Name: "push", Branch: "main"}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if len(matches[0].Drivers) != 2 {
		t.Fatalf("expected 2 drivers, got %d", len(matches[0].Drivers))
	}
}

// TestRuleEngineMultiEmit tests that one rule can fan out to several topics.
func TestRuleEngineMultiEmit(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "config_file == true", Emit: EmitList{"config.changed", "audit.trail"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{Provider: "github", Name: "push", Interest: Interest{ConfigFile: true}}

	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Topic != "config.changed" || matches[1].Topic != "audit.trail" {
		t.Fatalf("unexpected topics: %q, %q", matches[0].Topic, matches[1].Topic)
	}
}

// TestRuleEngineJSONPathDot tests that $.-prefixed lookups resolve against
// the raw payload.
func TestRuleEngineJSONPathDot(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "$.repository.private == false", Emit: EmitList{"push.public"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"repository":{"private":false}}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineJSONPathIndex tests that $.-prefixed lookups support array
// indexes.
func TestRuleEngineJSONPathIndex(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "$.commits[0].distinct == true", Emit: EmitList{"push.distinct"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"commits":[{"distinct":true},{"distinct":false}]}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

// TestRuleEngineBarePaths tests that dotted and indexed paths work without
// the $. prefix, resolved from the flattened payload.
func TestRuleEngineBarePaths(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "ref == \"refs/heads/main\" && repository.private == false", Emit: EmitList{"push.main"}},
			{When: "commits[0].distinct == true", Emit: EmitList{"push.any"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"ref":"refs/heads/main","repository":{"private":false},"commits":[{"distinct":true}]}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineStrictMissing tests that strict mode still refuses to match
// on missing fields.
func TestRuleEngineStrictMissing(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "missing_field == true", Emit: EmitList{"never"}},
		},
		Strict: true,
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:   "github",
		Name:       "push",
		RawPayload: []byte(`{"ref":"refs/heads/main"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 0 {
		t.Fatalf("expected no matches in strict mode, got %d", len(matches))
	}
}

func TestRuleEngineFunctions(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: `contains(changed_files, "package.json")`, Emit: EmitList{"deps.changed"}},
			{When: `like(ref, "refs/heads/%")`, Emit: EmitList{"branch.push"}},
		},
	}

	engine, err := NewRuleEngine(cfg)
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	event := Event{
		Provider:     "github",
		Name:         "push",
		ChangedFiles: []string{"package.json", "src/app.js"},
		RawPayload:   []byte(`{"ref":"refs/heads/main"}`),
	}

	matches := engine.Evaluate(event)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
}

// TestRuleEngineInvalidExpression tests that compilation errors surface at
// construction, not evaluation.
func TestRuleEngineInvalidExpression(t *testing.T) {
	cfg := RulesConfig{
		Rules: []Rule{
			{When: "== &&", Emit: EmitList{"never"}},
		},
	}
	if _, err := NewRuleEngine(cfg); err == nil {
		t.Fatal("expected a compile error for a malformed expression")
	}
}

// TestRuleEngineEmpty tests the no-rules case used for default-topic routing.
func TestRuleEngineEmpty(t *testing.T) {
	engine, err := NewRuleEngine(RulesConfig{})
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if !engine.Empty() {
		t.Fatal("engine with no rules reported Empty() = false")
	}
	if matches := engine.Evaluate(Event{Provider: "github", Name: "push"}); matches != nil {
		t.Fatalf("expected nil matches, got %v", matches)
	}
}

// TestEmitListYAML tests that emit accepts both scalar and list form.
func TestEmitListYAML(t *testing.T) {
	var rule Rule
	if err := yaml.Unmarshal([]byte("when: branch == \"main\"\nemit: push.main\n"), &rule); err != nil {
		t.Fatalf("scalar emit: %v", err)
	}
	if len(rule.Emit) != 1 || rule.Emit[0] != "push.main" {
		t.Fatalf("scalar emit parsed as %v", rule.Emit)
	}

	if err := yaml.Unmarshal([]byte("when: branch == \"main\"\nemit: [push.main, audit.trail]\n"), &rule); err != nil {
		t.Fatalf("list emit: %v", err)
	}
	if len(rule.Emit) != 2 {
		t.Fatalf("list emit parsed as %v", rule.Emit)
	}
}
