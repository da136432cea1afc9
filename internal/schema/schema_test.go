package schema_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-matrix/internal/schema"
)

func TestValidate(t *testing.T) {
	v, err := schema.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		schema  string
		body    string
		wantErr bool
	}{
		{"allocate ok", schema.AllocateRequest, `{"ratio":"40-30-30","rows":[{"periods":2,"available":{"NB":{"TN":3,"TL":0}}}]}`, false},
		{"allocate empty ratio", schema.AllocateRequest, `{"ratio":"","rows":[{"periods":1}]}`, false},
		{"allocate no rows", schema.AllocateRequest, `{"ratio":"40-30-30","rows":[]}`, true},
		{"allocate bad ratio", schema.AllocateRequest, `{"ratio":"50-50","rows":[{"periods":1}]}`, true},
		{"allocate negative periods", schema.AllocateRequest, `{"rows":[{"periods":-1}]}`, true},
		{"allocate negative availability", schema.AllocateRequest, `{"rows":[{"periods":1,"available":{"TH":{"TL":-2}}}]}`, true},
		{"allocate unknown level", schema.AllocateRequest, `{"rows":[{"periods":1,"available":{"XX":{"TN":1}}}]}`, true},
		{"allocate not json", schema.AllocateRequest, `{rows`, true},
		{"create ok", schema.CreateBlueprint, `{"exam_name":"Lớp 6 - Giữa kì 1"}`, false},
		{"create missing name", schema.CreateBlueprint, `{"rows":[]}`, true},
		{"edits ok", schema.RowEdits, `{"edits":[{"index":0,"examined_periods":2}]}`, false},
		{"edits unknown field", schema.RowEdits, `{"edits":[{"index":0,"lesson":"x"}]}`, true},
		{"distribute empty", schema.Distribute, `{}`, false},
		{"live edit needs edits", schema.LiveMessage, `{"type":"edit"}`, true},
		{"live distribute", schema.LiveMessage, `{"type":"distribute","ratio":"30-40-30"}`, false},
		{"live unknown type", schema.LiveMessage, `{"type":"reset"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.schema, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *schema.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Validate() error = %T, want *ValidationError", err)
				}
			}
		})
	}
}

func TestValidate_ErrorMessage(t *testing.T) {
	v, err := schema.New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = v.Validate(schema.CreateBlueprint, []byte(`{"exam_name":""}`))
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	if !strings.Contains(err.Error(), "exam_name") {
		t.Errorf("Error() = %q, want the failing field", err.Error())
	}

	if err := v.Validate("missing", []byte(`{}`)); err == nil {
		t.Error("Validate(missing) error = nil")
	}
}
