// internal/store/path.go
package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dotted paths address nested document fields; numeric segments index into
// arrays, e.g. "players.2.turnInfo.drinksPerPlayer".

func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// getPath walks the document tree and returns the value at path.
func getPath(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range splitPath(path) {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setPath writes value at path, creating intermediate maps as needed.
// Array segments must address existing indices; the store never grows an
// array through set (push exists for that).
func setPath(doc map[string]any, path string, value any) error {
	segs := splitPath(path)
	var cur any = doc
	for i, seg := range segs {
		last := i == len(segs)-1
		switch node := cur.(type) {
		case map[string]any:
			if last {
				node[seg] = value
				return nil
			}
			next, ok := node[seg]
			if !ok || next == nil {
				child := map[string]any{}
				node[seg] = child
				cur = child
				continue
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil {
				return fmt.Errorf("path %q: segment %q indexes an array", path, seg)
			}
			if idx < 0 || idx >= len(node) {
				return fmt.Errorf("path %q: index %d out of range", path, idx)
			}
			if last {
				node[idx] = value
				return nil
			}
			cur = node[idx]
		default:
			return fmt.Errorf("path %q: segment %q traverses a scalar", path, seg)
		}
	}
	return nil
}

// numberAt reads a numeric field, defaulting to 0 when absent.
func numberAt(doc map[string]any, path string) (float64, bool, error) {
	v, ok := getPath(doc, path)
	if !ok || v == nil {
		return 0, false, nil
	}
	f, isNum := v.(float64)
	if !isNum {
		return 0, false, fmt.Errorf("path %q is not numeric", path)
	}
	return f, true, nil
}

// arrayAt reads an array field, defaulting to empty when absent.
func arrayAt(doc map[string]any, path string) ([]any, error) {
	v, ok := getPath(doc, path)
	if !ok || v == nil {
		return nil, nil
	}
	arr, isArr := v.([]any)
	if !isArr {
		return nil, fmt.Errorf("path %q is not an array", path)
	}
	return arr, nil
}

// matchesPull reports whether an array element matches a pull predicate.
// Map predicates match subdocument fields; anything else compares equal.
func matchesPull(elem any, predicate any) bool {
	pred, isMap := predicate.(map[string]any)
	if !isMap {
		return equalValue(elem, predicate)
	}
	sub, isSub := elem.(map[string]any)
	if !isSub {
		return false
	}
	for k, want := range pred {
		if !equalValue(sub[k], want) {
			return false
		}
	}
	return true
}

func equalValue(a, b any) bool {
	// Normalized documents only hold JSON scalar types at the leaves.
	if af, ok := a.(float64); ok {
		bf, ok := b.(float64)
		return ok && af == bf
	}
	return a == b
}
