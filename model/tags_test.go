package model

import (
	"reflect"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want []string
	}{
		{
			name: "Nil input",
			raw:  nil,
			want: nil,
		},
		{
			name: "String slice",
			raw:  []string{"work", "personal"},
			want: []string{"work", "personal"},
		},
		{
			name: "String slice with whitespace and empties",
			raw:  []string{" work ", "", "  ", "personal"},
			want: []string{"work", "personal"},
		},
		{
			name: "Interface slice from JSON decoding",
			raw:  []interface{}{"a", "b", 42, "c"},
			want: []string{"a", "b", "c"},
		},
		{
			name: "JSON array string",
			raw:  `["marketing","q3"]`,
			want: []string{"marketing", "q3"},
		},
		{
			name: "Comma-separated string",
			raw:  "marketing, q3,launch",
			want: []string{"marketing", "q3", "launch"},
		},
		{
			name: "Single bare value",
			raw:  "marketing",
			want: []string{"marketing"},
		},
		{
			name: "Empty string",
			raw:  "",
			want: nil,
		},
		{
			name: "Commas only",
			raw:  ",, ,",
			want: nil,
		},
		{
			name: "Unsupported type",
			raw:  42,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeTags(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%v) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeTags_PreservesOrder(t *testing.T) {
	got := NormalizeTags([]string{"z", "a", "m"})
	want := []string{"z", "a", "m"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeTags() = %v, want %v (order must be preserved)", got, want)
	}
}
