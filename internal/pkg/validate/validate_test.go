package validate

import "testing"

type sample struct {
	Feedback string `json:"feedback" validate:"required,max=64"`
	Action   string `json:"action" validate:"omitempty,oneof=delete clear"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	fields, err := Struct(sample{Action: "ban"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fields["feedback"] != "required" || fields["action"] != "oneof" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	fields, err = Struct(sample{Feedback: "Spam", Action: "clear"})
	if err != nil || len(fields) != 0 {
		t.Fatalf("expected valid sample, got %v %v", fields, err)
	}
}

func TestRequired(t *testing.T) {
	if Required("  ") || !Required("x") {
		t.Fatalf("unexpected Required result")
	}
}
