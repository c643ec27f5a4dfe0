package crawl

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRecord_UnmarshalKeepsOrder(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"title":"Acme Lamp","price":"$10","reviews":4,"error":false}`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := []string{"title", "price", "reviews", "error"}
	if got := r.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if got := r.Text("reviews"); got != "4" {
		t.Errorf("reviews text = %q, want %q", got, "4")
	}
	v, _ := r.Get("error")
	if !v.IsFalse() {
		t.Errorf("error field should be boolean false, got kind %s", v.Kind())
	}
}

func TestValue_Kinds(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind Kind
		wantText string
	}{
		{"string", `"Acme"`, KindString, "Acme"},
		{"empty string", `""`, KindString, ""},
		{"integer", `12`, KindNumber, "12"},
		{"float literal kept", `4.50`, KindNumber, "4.50"},
		{"true", `true`, KindBool, "true"},
		{"false", `false`, KindBool, "false"},
		{"null", `null`, KindNull, ""},
		{"array", `[1,2]`, KindRaw, "[1,2]"},
		{"object", `{"a":1}`, KindRaw, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Value
			if err := v.UnmarshalJSON([]byte(tt.input)); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.input, err)
			}
			if v.Kind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", v.Kind(), tt.wantKind)
			}
			if v.Text() != tt.wantText {
				t.Errorf("text = %q, want %q", v.Text(), tt.wantText)
			}
		})
	}
}

func TestRecord_MarshalPreservesOrderAndLiterals(t *testing.T) {
	r := NewRecord()
	r.Set("title", StringValue("Acme Lamp"))
	r.Set("reviews", NumberValue("4"))
	r.Set("price", StringValue("$10"))
	r.Set("flag", BoolValue(true))
	r.Set("note", NullValue())

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"title":"Acme Lamp","reviews":4,"price":"$10","flag":true,"note":null}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestRecord_Delete(t *testing.T) {
	r := NewRecord()
	r.Set("a", IntValue(1))
	r.Set("b", IntValue(2))
	r.Set("c", IntValue(3))
	r.Delete("b")
	r.Delete("missing")

	if got, want := r.Keys(), []string{"a", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if r.Has("b") {
		t.Error("b should be gone")
	}
}

func TestParseCandidates(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantTitles []string
		wantErr    bool
	}{
		{"array", `[{"title":"A"},{"title":"B"}]`, []string{"A", "B"}, false},
		{"array skips non-objects", `[{"title":"A"}, 3, "x", null]`, []string{"A"}, false},
		{"wrapped", `{"items":[{"title":"A"}]}`, []string{"A"}, false},
		{"wrapped after scalar field", `{"count":1,"products":[{"title":"Z"}]}`, []string{"Z"}, false},
		{"single object", `{"title":"Solo"}`, []string{"Solo"}, false},
		{"single object with list field", `{"title":"Acme Lamp","price":"$5","reviews":3,"colors":["red","blue"]}`, []string{"Acme Lamp"}, false},
		{"single object with nested objects", `{"title":"Kit","variants":[{"sku":"k1"}]}`, []string{"Kit"}, false},
		{"wrapper key with note", `{"note":"page 2","items":[{"title":"N"}]}`, []string{"N"}, false},
		{"empty wrapper", `{"items":[]}`, nil, false},
		{"empty array", `[]`, nil, false},
		{"null", `null`, nil, false},
		{"blank", `  `, nil, false},
		{"empty object", `{}`, nil, false},
		{"garbage", `not json`, nil, true},
		{"truncated", `[{"title":"A"`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidates([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.wantTitles) {
				t.Fatalf("got %d candidates, want %d", len(got), len(tt.wantTitles))
			}
			for i, r := range got {
				if r.Text("title") != tt.wantTitles[i] {
					t.Errorf("candidate %d title = %q, want %q", i, r.Text("title"), tt.wantTitles[i])
				}
			}
		})
	}
}
