package schemabuilder

import "testing"

func TestCompileAndValidateAcceptsConformingInstance(t *testing.T) {
	schema := Object(
		Property("id", String("an id")).Required(),
		Property("count", Int("a count")),
	)
	compiled, err := Compile("test-schema", schema)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := Validate(compiled, []byte(`{"id":"a1","count":3}`)); err != nil {
		t.Errorf("expected conforming instance to validate, got: %v", err)
	}
}

func TestValidateRejectsMissingRequiredProperty(t *testing.T) {
	schema := Object(
		Property("id", String("an id")).Required(),
	)
	compiled, err := Compile("test-schema-missing", schema)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := Validate(compiled, []byte(`{}`)); err == nil {
		t.Error("expected validation error for missing required property")
	}
}

func TestValidateRejectsWrongType(t *testing.T) {
	schema := Object(
		Property("score", Int("a score")).Required(),
	)
	compiled, err := Compile("test-schema-type", schema)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := Validate(compiled, []byte(`{"score":"not a number"}`)); err == nil {
		t.Error("expected validation error for wrong type")
	}
}

func TestMustCompilePanicsOnMalformedSchema(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustCompile to panic on a schema that fails to compile")
		}
	}()
	// "type" must be a string or array of strings; a number makes the schema
	// itself invalid, so compilation fails.
	bad := map[string]any{"type": 42}
	MustCompile("bad-schema", bad)
}
