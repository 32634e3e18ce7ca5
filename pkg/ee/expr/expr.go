// Package expr builds serialized expression graphs for the earth-observation
// compute service.
//
// The service does not receive imperative code: it receives a JSON document
// describing a DAG of named function invocations, and evaluates it remotely.
// This package is the encoder for that wire format. Composing the actual
// NDVI/regression pipelines out of these nodes is the job of pkg/ee/image.
package expr

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

type kind int

const (
	kindCall kind = iota
	kindFunction
	kindArgumentRef
)

// Args are the named arguments of one invocation. Values may be
// *Node, plain literals (string, bool, numbers), []any or map[string]any.
type Args map[string]any

// Node is one value in the expression graph. Nodes are immutable once
// created; sharing a *Node between two call sites makes the serialized
// graph share the subexpression, too.
type Node struct {
	kind     kind
	function string   // kindCall: remote function name
	args     Args     // kindCall
	params   []string // kindFunction: argument names
	body     *Node    // kindFunction
	argName  string   // kindArgumentRef
}

// Call builds an invocation of a remote function, e.g.
//
//	expr.Call("ImageCollection.load", expr.Args{"id": "LANDSAT/LT5_L1T_TOA"})
func Call(function string, args Args) *Node {
	return &Node{kind: kindCall, function: function, args: args}
}

// Function builds an anonymous mapping function, used as argument of
// algorithms like Collection.map. Inside body, refer to the parameters
// with Arg.
func Function(params []string, body *Node) *Node {
	return &Node{kind: kindFunction, params: params, body: body}
}

// Arg refers to a parameter of the enclosing Function.
func Arg(name string) *Node {
	return &Node{kind: kindArgumentRef, argName: name}
}

// Serialize encodes the graph rooted at n into the service's wire format:
// a CompoundValue whose scope lists every invocation once, with ValueRefs
// wiring shared subexpressions together.
func (n *Node) Serialize() ([]byte, error) {
	s := &serializer{memo: map[*Node]string{}}
	root, err := s.encode(n)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]any{
		"type":  "CompoundValue",
		"scope": s.scope,
		"value": root,
	})
}

type serializer struct {
	scope [][2]any // pairs of (name, encoded node)
	memo  map[*Node]string
}

func (s *serializer) encode(v any) (any, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case *Node:
		return s.encodeNode(value)
	case []any:
		encoded := make([]any, len(value))
		for i, item := range value {
			e, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			encoded[i] = e
		}
		return encoded, nil
	case map[string]any:
		encoded := make(map[string]any, len(value))
		for key, item := range value {
			e, err := s.encode(item)
			if err != nil {
				return nil, err
			}
			encoded[key] = e
		}
		return encoded, nil
	case string, bool,
		int, int32, int64, float32, float64:
		return value, nil
	case []float64:
		encoded := make([]any, len(value))
		for i, f := range value {
			encoded[i] = f
		}
		return encoded, nil
	case [][2]float64:
		encoded := make([]any, len(value))
		for i, pair := range value {
			encoded[i] = []any{pair[0], pair[1]}
		}
		return encoded, nil
	}
	return nil, fmt.Errorf("unserializable value in expression: %T", v)
}

func (s *serializer) encodeNode(n *Node) (any, error) {
	switch n.kind {
	case kindArgumentRef:
		return map[string]any{"type": "ArgumentRef", "value": n.argName}, nil

	case kindFunction:
		body, err := s.encode(n.body)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"type":          "Function",
			"argumentNames": n.params,
			"body":          body,
		}, nil

	case kindCall:
		if name, ok := s.memo[n]; ok {
			return map[string]any{"type": "ValueRef", "value": name}, nil
		}

		arguments := make(map[string]any, len(n.args))
		// deterministic argument order keeps serialization stable
		keys := make([]string, 0, len(n.args))
		for k := range n.args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			encoded, err := s.encode(n.args[k])
			if err != nil {
				return nil, err
			}
			arguments[k] = encoded
		}

		name := strconv.Itoa(len(s.scope))
		s.scope = append(s.scope, [2]any{name, map[string]any{
			"type":         "Invocation",
			"functionName": n.function,
			"arguments":    arguments,
		}})
		s.memo[n] = name

		return map[string]any{"type": "ValueRef", "value": name}, nil
	}
	return nil, fmt.Errorf("unserializable node kind: %d", n.kind)
}
