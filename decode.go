package tracking

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// maxUnescapePasses bounds repeated percent-decoding of multiply-encoded
// values. Observed beacons never nest more than three layers deep.
const maxUnescapePasses = 3

// Keys whose values carry a further layer of encoding. The decoder unwraps
// each of them and stores the result as a raw/parsed pair.
const (
	keyGoKey     = "gokey"
	keyExpData   = "expdata"
	keyExArgs    = "exargs"
	keyParamsExp = "params-exp"
	keyParamsClk = "params-clk"
	keyUTLogMap  = "utLogMap"
)

// Decode turns a raw beacon body into a navigable tree.
//
// The body is first tried as a JSON object; otherwise it is treated as a
// key=value&key=value query string. Values of the distinguished layered
// keys are re-parsed recursively: gokey holds a nested query string, expdata
// holds a JSON array whose items carry further query strings under exargs,
// and utLogMap holds JSON behind up to three rounds of percent-encoding.
//
// Decoding never fails for data-shape reasons: a layer that cannot be
// parsed keeps its raw string with a nil parsed side. An empty body yields
// a nil node. The returned error is reserved for bodies that cannot even be
// kept as a raw string, which the fallback design makes unreachable.
func Decode(rawBody string) (*Node, error) {
	if rawBody == "" {
		return nil, nil
	}

	if node, ok := decodeJSONObject(rawBody); ok {
		return node, nil
	}

	return decodeQueryString(rawBody), nil
}

// decodeJSONObject attempts a whole-body JSON parse. Only objects are
// accepted at the top level; scalar or array bodies fall through to the
// query-string path.
func decodeJSONObject(body string) (*Node, bool) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}

	return jsonValueToNode(raw), true
}

// jsonValueToNode converts a parsed JSON value into a tree, applying
// layered-key decoding to string values. Object keys are sorted because
// encoding/json does not preserve document order.
func jsonValueToNode(v any) *Node {
	switch value := v.(type) {
	case map[string]any:
		node := MapNode()
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			node.Set(k, jsonFieldToNode(k, value[k]))
		}
		return node
	case []any:
		items := make([]*Node, 0, len(value))
		for _, item := range value {
			items = append(items, jsonValueToNode(item))
		}
		return ListNode(items...)
	case string:
		return StringNode(value)
	case json.Number:
		return StringNode(value.String())
	case bool:
		if value {
			return StringNode("true")
		}
		return StringNode("false")
	case nil:
		return StringNode("")
	default:
		return StringNode("")
	}
}

// jsonFieldToNode converts one object field, unwrapping layered keys whose
// values arrived as encoded strings. The query-string carriers (gokey,
// params-exp, params-clk) reach JSON documents percent-encoded, so they get
// the unescape pass the query-string segment parser would otherwise have
// applied.
func jsonFieldToNode(key string, v any) *Node {
	s, ok := v.(string)
	if !ok || !isLayeredKey(key) {
		return jsonValueToNode(v)
	}
	value := s
	switch key {
	case keyGoKey, keyParamsExp, keyParamsClk:
		value = unescape(value)
	}
	return EncodedNode(s, decodeLayer(key, value))
}

func isLayeredKey(key string) bool {
	switch key {
	case keyGoKey, keyExpData, keyParamsExp, keyParamsClk, keyUTLogMap:
		return true
	}
	return false
}

// decodeLayer re-parses the value of a layered key. Returns nil when the
// inner layer cannot be decoded; the caller keeps the raw string either way.
func decodeLayer(key, value string) *Node {
	switch key {
	case keyGoKey, keyParamsExp, keyParamsClk:
		node := decodeQueryString(value)
		if node.Len() == 0 {
			return nil
		}
		return node
	case keyExpData:
		return decodeExpData(value)
	case keyUTLogMap:
		return decodeMultiEscapedJSON(value)
	}
	return nil
}

// decodeQueryString parses key=value&key=value data into a map node.
// Splitting on "=" happens at the first occurrence only, so "=" inside
// values survives. Malformed percent escapes keep the raw text.
func decodeQueryString(s string) *Node {
	node := MapNode()
	for _, segment := range strings.Split(s, "&") {
		if segment == "" {
			continue
		}
		key, value, found := strings.Cut(segment, "=")
		if !found {
			continue
		}
		key = unescape(key)
		value = unescape(value)
		if isLayeredKey(key) {
			node.Set(key, EncodedNode(value, decodeLayer(key, value)))
		} else {
			node.Set(key, StringNode(value))
		}
	}
	return node
}

// unescape percent-decodes s, returning the input unchanged when the
// escaping is malformed.
func unescape(s string) string {
	decoded, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// decodeExpData parses the expdata JSON array. Each item's exargs may carry
// params-exp / params-clk values that are themselves query strings.
func decodeExpData(value string) *Node {
	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil
	}

	nodes := make([]*Node, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			nodes = append(nodes, jsonValueToNode(item))
			continue
		}
		nodes = append(nodes, decodeExpDataItem(obj))
	}
	return ListNode(nodes...)
}

func decodeExpDataItem(obj map[string]any) *Node {
	node := MapNode()
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != keyExArgs {
			node.Set(k, jsonValueToNode(obj[k]))
			continue
		}
		exargs, ok := obj[k].(map[string]any)
		if !ok {
			node.Set(k, jsonValueToNode(obj[k]))
			continue
		}
		node.Set(k, decodeExArgs(exargs))
	}
	return node
}

func decodeExArgs(exargs map[string]any) *Node {
	node := MapNode()
	keys := make([]string, 0, len(exargs))
	for k := range exargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.Set(k, jsonFieldToNode(k, exargs[k]))
	}
	return node
}

// decodeMultiEscapedJSON peels percent-encoding off a value until it parses
// as JSON, giving up after maxUnescapePasses. Decoding is greedy: the first
// pass that yields valid JSON wins.
func decodeMultiEscapedJSON(value string) *Node {
	current := value
	for i := 0; i < maxUnescapePasses; i++ {
		decoded, err := url.PathUnescape(current)
		if err != nil {
			return nil
		}
		current = decoded

		dec := json.NewDecoder(strings.NewReader(current))
		dec.UseNumber()
		var parsed any
		if err := dec.Decode(&parsed); err == nil {
			if _, isObject := parsed.(map[string]any); isObject {
				return jsonValueToNode(parsed)
			}
		}
	}
	return nil
}
