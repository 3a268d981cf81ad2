package suggest_test

import (
	"testing"

	"github.com/quilang-hardware/hardy/internal/tools/suggest"
)

func TestMatcher_Closest(t *testing.T) {
	t.Parallel()

	customers := []string{"Juan dela Cruz", "Pedro Builders", "Maria Santos"}

	tests := []struct {
		name   string
		query  string
		want   string
		wantOK bool
	}{
		{name: "transposed letters", query: "Jaun", want: "Juan dela Cruz", wantOK: true},
		{name: "misspelled word", query: "Pedro Bilders", want: "Pedro Builders", wantOK: true},
		{name: "uppercase", query: "MARIA", want: "Maria Santos", wantOK: true},
		{name: "unrelated", query: "xyz", wantOK: false},
		{name: "blank query", query: "  ", wantOK: false},
	}
	m := suggest.New()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, score, ok := m.Closest(tc.query, customers)
			if ok != tc.wantOK {
				t.Fatalf("Closest(%q) ok = %v (got %q, %.2f), want %v", tc.query, ok, got, score, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Errorf("Closest(%q) = %q, want %q", tc.query, got, tc.want)
			}
			if !ok && (got != "" || score != 0) {
				t.Errorf("Closest(%q) miss = (%q, %f), want zero values", tc.query, got, score)
			}
		})
	}
}

func TestMatcher_EmptyNames(t *testing.T) {
	t.Parallel()

	if _, _, ok := suggest.New().Closest("Juan", nil); ok {
		t.Error("Closest with no names reported a match")
	}
}

func TestMatcher_Thresholds(t *testing.T) {
	t.Parallel()

	names := []string{"Juan dela Cruz"}
	strict := suggest.New(suggest.WithPhoneticThreshold(0.99), suggest.WithFuzzyThreshold(0.99))
	if got, _, ok := strict.Closest("Jaun", names); ok {
		t.Errorf("strict matcher matched %q", got)
	}
	loose := suggest.New(suggest.WithPhoneticThreshold(0.5))
	if _, _, ok := loose.Closest("Jaun", names); !ok {
		t.Error("loose matcher missed Jaun")
	}
}
