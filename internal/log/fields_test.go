package log

import "testing"

func TestLogFieldsBuilder(t *testing.T) {
	fields := NewFields().
		WithHTTPRequest("GET", "/api/accounts", "from=2026-01-01", "curl/8.0").
		WithHTTPResponse(200, 12, true).
		WithComponent(ComponentHTTP)

	slice := fields.ToSlice()
	if len(slice) != len(fields)*2 {
		t.Fatalf("expected %d elements, got %d", len(fields)*2, len(slice))
	}

	got := map[string]any{}
	for i := 0; i < len(slice); i += 2 {
		key, ok := slice[i].(string)
		if !ok {
			t.Fatalf("non-string key at %d: %v", i, slice[i])
		}
		got[key] = slice[i+1]
	}
	if got[FieldComponent] != ComponentHTTP {
		t.Fatalf("component: got %v", got[FieldComponent])
	}
	if got[FieldMethod] != "GET" || got[FieldPath] != "/api/accounts" {
		t.Fatalf("request fields: got %v %v", got[FieldMethod], got[FieldPath])
	}
	if got[FieldStatusCode] != 200 || got[FieldSuccess] != true {
		t.Fatalf("response fields: got %v %v", got[FieldStatusCode], got[FieldSuccess])
	}
}
