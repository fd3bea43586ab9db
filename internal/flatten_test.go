package internal

import "testing"

// TestFlattenNestedAndArray tests that a nested map with an array is flattened correctly.
func TestFlattenNestedAndArray(t *testing.T) {
	input := map[string]interface{}{
		"commit": map[string]interface{}{
			"id": "abc",
			"actions": []interface{}{
				map[string]interface{}{"issue": "ABC-1"},
				map[string]interface{}{"issue": "ABC-2"},
			},
		},
		"result": "applied",
	}

	flat := Flatten(input)
	if flat["commit.id"] != "abc" || flat["result"] != "applied" {
		t.Fatalf("expected scalar keys, got %v", flat)
	}
	if _, ok := flat["commit.actions[]"]; !ok {
		t.Fatalf("expected commit.actions[] to exist")
	}
	if flat["commit.actions[0].issue"] != "ABC-1" {
		t.Fatalf("expected actions[0].issue to be ABC-1")
	}
	if flat["commit.actions[1].issue"] != "ABC-2" {
		t.Fatalf("expected actions[1].issue to be ABC-2")
	}
}
