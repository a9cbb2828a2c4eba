package classes

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"classpane/internal/document"
)

func TestParseAttribute(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  ClassSet
	}{
		{name: "empty", value: "", want: ClassSet{}},
		{name: "blank", value: " \t\n", want: ClassSet{}},
		{name: "simple", value: "a b", want: ClassSet{"a": true, "b": true}},
		{name: "dots are not separators", value: " a  b.c ,d", want: ClassSet{"a": true, "b.c": true, ",d": true}},
		{name: "duplicates collapse", value: "x x\ty", want: ClassSet{"x": true, "y": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseAttribute(tt.value)); diff != "" {
				t.Errorf("ParseAttribute(%q) mismatch (-want +got):\n%s", tt.value, diff)
			}
		})
	}
}

func TestSplitInput(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{text: "", want: nil},
		{text: "   ", want: nil},
		{text: " a  b.c ,d", want: []string{"a", "b", "c", "d"}},
		{text: ".foo.bar", want: []string{"foo", "bar"}},
		{text: "foo bar", want: []string{"foo", "bar"}},
		{text: "a,,b..c", want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		got := SplitInput(tt.text)
		if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("SplitInput(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestSerializeSortsAndDeduplicates(t *testing.T) {
	got := Serialize([]string{"b", "a", "b", "", "C"})
	if got != "C a b" {
		t.Fatalf("Serialize = %q, want %q", got, "C a b")
	}
}

func TestParseThenSerializeEnabledRoundTrips(t *testing.T) {
	for _, value := range []string{"a b", "  z  y x ", "dup dup one", ""} {
		set := ParseAttribute(value)
		want := Serialize(strings.Fields(value))
		if got := Serialize(set.Enabled()); got != want {
			t.Errorf("round trip of %q = %q, want %q", value, got, want)
		}
	}
}

func TestClassSetNamesCaseInsensitive(t *testing.T) {
	set := ClassSet{"beta": true, "Alpha": false, "alpha": true, "Gamma": true}
	want := []string{"Alpha", "alpha", "beta", "Gamma"}
	if diff := cmp.Diff(want, set.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestClassSetActiveIncludesDraft(t *testing.T) {
	set := ClassSet{"a": false, "b": true}
	if got := set.Active(".c, b"); got != "b c" {
		t.Fatalf("Active = %q, want %q", got, "b c")
	}
}

func TestCacheReturnsSameSetUntilInvalidated(t *testing.T) {
	doc := newFakeDoc()
	doc.attrs[1] = "a b"
	cache := NewCache(doc)

	first := cache.Get(1)
	first["extra"] = false
	if _, ok := cache.Get(1)["extra"]; !ok {
		t.Fatalf("expected Get to return the cached instance")
	}

	doc.attrs[1] = "c"
	if _, ok := cache.Get(1)["c"]; ok {
		t.Fatalf("cache must not re-read the attribute before invalidation")
	}

	cache.Invalidate(1)
	if cache.Cached(1) {
		t.Fatalf("expected node to be dropped")
	}
	if diff := cmp.Diff(ClassSet{"c": true}, cache.Get(1)); diff != "" {
		t.Errorf("rebuilt set mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheInvalidateOnlyTouchesOneNode(t *testing.T) {
	doc := newFakeDoc()
	doc.attrs[1] = "a"
	doc.attrs[2] = "b"
	cache := NewCache(doc)
	cache.Get(1)
	cache.Get(2)

	cache.Invalidate(1)
	if cache.Cached(1) || !cache.Cached(2) {
		t.Fatalf("invalidate leaked across nodes")
	}
	if cache.Len() != 1 {
		t.Fatalf("Len = %d, want 1", cache.Len())
	}
}

func TestCacheToggleInsertsNewNames(t *testing.T) {
	doc := newFakeDoc()
	cache := NewCache(doc)
	cache.Toggle(document.NodeID(7), "fresh", true)
	cache.Toggle(document.NodeID(7), "off", false)
	if diff := cmp.Diff(ClassSet{"fresh": true, "off": false}, cache.Get(7)); diff != "" {
		t.Errorf("toggle mismatch (-want +got):\n%s", diff)
	}
}

func TestSuppressorCountsWrites(t *testing.T) {
	s := NewSuppressor()
	s.Arm(1)
	s.Arm(1)
	s.Release(1)
	if !s.Suppressed(1) {
		t.Fatalf("expected node to stay suppressed while a write is in flight")
	}
	s.Release(1)
	if s.Suppressed(1) || s.Len() != 0 {
		t.Fatalf("expected suppression to clear after the last release")
	}
	s.Release(1)
	if s.Len() != 0 {
		t.Fatalf("extra release must not underflow")
	}
}

func TestPendingSwapStartsFreshBuffer(t *testing.T) {
	p := NewPending()
	p.Put(1, "a")
	p.Put(1, "a b")
	p.Put(2, "c")

	batch := p.Swap()
	if diff := cmp.Diff(map[document.NodeID]string{1: "a b", 2: "c"}, batch); diff != "" {
		t.Errorf("batch mismatch (-want +got):\n%s", diff)
	}
	p.Put(1, "z")
	if batch[1] != "a b" {
		t.Fatalf("swapped batch must not see later puts")
	}
	if p.Len() != 1 {
		t.Fatalf("Len = %d, want 1", p.Len())
	}
}
