package vlc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestClock_GetAbsent(t *testing.T) {
	c := NewClock()
	assert.Equal(t, uint64(0), c.Get("missing"))
}

func TestClock_CopyIsIndependent(t *testing.T) {
	c := Clock{"A": 1}
	cp := c.Copy()
	cp["A"] = 5
	cp["B"] = 1

	assert.Equal(t, uint64(1), c["A"])
	assert.NotContains(t, c, "B")
}

func TestClock_CopyNil(t *testing.T) {
	var c Clock
	cp := c.Copy()
	assert.NotNil(t, cp)
	assert.Empty(t, cp)
}

func TestClock_Compare(t *testing.T) {
	tests := []struct {
		name string
		a, b Clock
		want Ordering
	}{
		{"both empty", Clock{}, Clock{}, Equal},
		{"zero entry equals absent", Clock{"A": 0}, Clock{}, Equal},
		{"before", Clock{"A": 1}, Clock{"A": 2}, Before},
		{"after", Clock{"A": 2, "B": 1}, Clock{"A": 2}, After},
		{"absent on receiver", Clock{}, Clock{"B": 1}, Before},
		{"concurrent", Clock{"A": 2, "B": 1}, Clock{"A": 1, "B": 2}, Concurrent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestClock_CompareAntisymmetric(t *testing.T) {
	a := Clock{"A": 1, "B": 3}
	b := Clock{"A": 2, "B": 3}

	assert.Equal(t, Before, a.Compare(b))
	assert.Equal(t, After, b.Compare(a))
	assert.True(t, b.Dominates(a))
	assert.False(t, a.Dominates(b))
}

func TestClock_String(t *testing.T) {
	assert.Equal(t, "{}", Clock{}.String())
	assert.Equal(t, "{A:2, B:3}", Clock{"B": 3, "A": 2}.String())
}

func TestClock_SortedKeysUTF16(t *testing.T) {
	// U+1F600 encodes as surrogate 0xD83D, which sorts before U+FB01 in
	// UTF-16 even though its UTF-8 encoding sorts after.
	c := Clock{"\uFB01": 1, "\U0001F600": 1, "a": 1}
	assert.Equal(t, []string{"a", "\U0001F600", "\uFB01"}, c.SortedKeys())
}

func TestJoin_ElementwiseMax(t *testing.T) {
	a := Clock{"A": 2, "C": 1}
	b := Clock{"B": 3, "C": 4}

	got := Join(a, b)

	want := Clock{"A": 2, "B": 3, "C": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Join() mismatch (-want +got):\n%s", diff)
	}
}

func TestJoin_DoesNotMutateInputs(t *testing.T) {
	a := Clock{"A": 1}
	b := Clock{"A": 5, "B": 1}

	_ = Join(a, b)

	assert.Equal(t, Clock{"A": 1}, a)
	assert.Equal(t, Clock{"A": 5, "B": 1}, b)
}

func TestJoin_Commutative(t *testing.T) {
	pairs := [][2]Clock{
		{{}, {}},
		{{"A": 1}, {}},
		{{"A": 2, "B": 1}, {"A": 1, "B": 2}},
		{{"A": 5}, {"B": 7, "C": 1}},
	}
	for _, p := range pairs {
		if diff := cmp.Diff(Join(p[0], p[1]), Join(p[1], p[0])); diff != "" {
			t.Errorf("Join(%v, %v) not commutative:\n%s", p[0], p[1], diff)
		}
	}
}

func TestJoin_Idempotent(t *testing.T) {
	a := Clock{"A": 2, "B": 1}
	b := Clock{"B": 4, "C": 3}

	ab := Join(a, b)
	if diff := cmp.Diff(ab, Join(ab, b)); diff != "" {
		t.Errorf("Join(Join(a,b), b) != Join(a,b):\n%s", diff)
	}
	if diff := cmp.Diff(ab, Join(ab, ab)); diff != "" {
		t.Errorf("Join(x, x) != x:\n%s", diff)
	}
}

func TestJoin_Associative(t *testing.T) {
	a := Clock{"A": 1, "B": 5}
	b := Clock{"B": 2, "C": 3}
	c := Clock{"A": 4, "C": 1}

	left := Join(Join(a, b), c)
	right := Join(a, Join(b, c))
	if diff := cmp.Diff(left, right); diff != "" {
		t.Errorf("Join not associative:\n%s", diff)
	}
}

func TestJoin_DominatesBoth(t *testing.T) {
	a := Clock{"n1": 1, "n2": 1}
	b := Clock{"n1": 2, "n3": 1}

	joined := Join(a, b)

	assert.True(t, joined.Dominates(a))
	assert.True(t, joined.Dominates(b))
}
