package models

import "encoding/json"

// ExecutionContext is the key/value data accumulated as nodes execute in
// order. Within a run it is append-only by convention: keys written by one
// node stay visible, unmodified, to every later node. The engine owns the
// canonical copy; executors only ever see clones.
type ExecutionContext map[string]any

// Clone returns a deep copy of the context so that an executor cannot mutate
// data already merged by earlier nodes. Values are round-tripped through JSON
// because the context only ever holds JSON-like data.
func (c ExecutionContext) Clone() ExecutionContext {
	if c == nil {
		return ExecutionContext{}
	}

	raw, err := json.Marshal(c)
	if err != nil {
		// Context values come from JSON decoding and node outputs; a marshal
		// failure here means a node returned something non-serializable.
		// Fall back to a shallow copy rather than losing the run.
		clone := make(ExecutionContext, len(c))
		for k, v := range c {
			clone[k] = v
		}

		return clone
	}

	var clone ExecutionContext

	_ = json.Unmarshal(raw, &clone)
	if clone == nil {
		clone = ExecutionContext{}
	}

	return clone
}

// Merge returns a new context containing all entries of c plus the given
// output. Existing keys are overwritten only when the output names them;
// nothing is ever removed.
func (c ExecutionContext) Merge(output map[string]any) ExecutionContext {
	merged := make(ExecutionContext, len(c)+len(output))
	for k, v := range c {
		merged[k] = v
	}

	for k, v := range output {
		merged[k] = v
	}

	return merged
}
