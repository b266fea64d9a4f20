package tracking

import (
	"testing"
)

func TestNodeSetGetPreservesOrder(t *testing.T) {
	node := MapNode()
	node.Set("b", StringNode("2"))
	node.Set("a", StringNode("1"))
	node.Set("c", StringNode("3"))
	node.Set("a", StringNode("overwritten"))

	keys := node.Keys()
	want := []string{"b", "a", "c"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: want %q, got %q", i, k, keys[i])
		}
	}

	a, ok := node.Get("a")
	if !ok || a.Value() != "overwritten" {
		t.Errorf("expected overwritten value for a, got %q", a.Value())
	}
	if node.Len() != 3 {
		t.Errorf("expected len 3, got %d", node.Len())
	}
}

func TestNodeFindShallowFirst(t *testing.T) {
	inner := MapNode()
	inner.Set("spm", StringNode("deep"))

	node := MapNode()
	node.Set("nested", inner)
	node.Set("spm", StringNode("shallow"))

	found, ok := node.Find("spm")
	if !ok {
		t.Fatal("expected match")
	}
	if found.Value() != "shallow" {
		t.Errorf("expected shallow match to win, got %q", found.Value())
	}
}

func TestNodeFindInsertionOrder(t *testing.T) {
	first := MapNode()
	first.Set("goodscode", StringNode("first"))
	second := MapNode()
	second.Set("goodscode", StringNode("second"))

	node := MapNode()
	node.Set("one", first)
	node.Set("two", second)

	found, ok := node.Find("goodscode")
	if !ok || found.Value() != "first" {
		t.Errorf("expected first-inserted branch to win, got %q", found.Value())
	}
}

func TestNodeFindThroughEncodedAndList(t *testing.T) {
	leaf := MapNode()
	leaf.Set("_p_prod", StringNode("1234567890"))

	node := MapNode()
	node.Set("expdata", EncodedNode("raw", ListNode(MapNode(), leaf)))

	found, ok := node.Find("_p_prod")
	if !ok || found.Value() != "1234567890" {
		t.Errorf("expected match through encoded list, got %q", found.Value())
	}

	if _, ok := node.Find("missing"); ok {
		t.Error("expected no match for missing key")
	}
}

func TestNodeFindNilReceiver(t *testing.T) {
	var node *Node
	if _, ok := node.Find("anything"); ok {
		t.Error("expected nil node to match nothing")
	}
	if node.Value() != "" {
		t.Error("expected empty value on nil node")
	}
}

func TestNodeValue(t *testing.T) {
	list := ListNode(StringNode("a"), StringNode("b"))
	parsed := MapNode()
	parsed.Set("k", StringNode("v"))

	tests := []struct {
		name string
		node *Node
		want string
	}{
		{"string leaf", StringNode("hello"), "hello"},
		{"encoded with parse", EncodedNode("k=v", parsed), `{"k":"v"}`},
		{"encoded without parse", EncodedNode("garbage", nil), "garbage"},
		{"list as json", list, `["a","b"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.Value(); got != tt.want {
				t.Errorf("want %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNodeMarshalJSON(t *testing.T) {
	inner := MapNode()
	inner.Set("z", StringNode("1"))
	inner.Set("a", StringNode("2"))

	node := MapNode()
	node.Set("gokey", EncodedNode("z=1&a=2", inner))
	node.Set("plain", StringNode("x"))

	data, err := node.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"gokey":{"raw":"z=1&a=2","parsed":{"z":"1","a":"2"}},"plain":"x"}`
	if string(data) != want {
		t.Errorf("want %s, got %s", want, data)
	}
}

func TestNodeMarshalNilParsed(t *testing.T) {
	data, err := EncodedNode("broken", nil).MarshalJSON()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"raw":"broken","parsed":null}` {
		t.Errorf("unexpected marshal output: %s", data)
	}
}
