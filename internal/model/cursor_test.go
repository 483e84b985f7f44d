package model

import "testing"

func TestCursor_Normalize(t *testing.T) {
	cases := []struct {
		index, n, want int
	}{
		{0, 3, 0},
		{2, 3, 2},
		{3, 3, 0},
		{5, 3, 0},
		{-1, 3, 0},
	}
	for _, c := range cases {
		got := Cursor{Index: c.index}.Normalize(c.n)
		if got != c.want {
			t.Fatalf("Normalize(%d, n=%d) = %d, want %d", c.index, c.n, got, c.want)
		}
	}
}

func TestCursor_AdvanceWraps(t *testing.T) {
	c := Cursor{Index: 2, LastReplied: map[string]string{"mastodon": "x"}}
	next := c.Advance(2, 3)
	if next.Index != 0 {
		t.Fatalf("expected wrap to 0, got %d", next.Index)
	}
	if next.LastReplied["mastodon"] != "x" {
		t.Fatalf("reserved fields must be preserved")
	}
	if c.Advance(0, 3).Index != 1 {
		t.Fatalf("expected 1")
	}
}

func TestParseKind(t *testing.T) {
	if ParseKind("mention") != KindMention || ParseKind("reply") != KindReply {
		t.Fatal("known kinds not parsed")
	}
	if ParseKind("favourite") != KindOther || ParseKind("like") != KindOther {
		t.Fatal("unknown kinds must map to other")
	}
}
