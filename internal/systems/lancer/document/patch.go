package document

import (
	"fmt"
	"strings"
)

// OpKind identifies a patch operation.
type OpKind int

const (
	OpSet OpKind = iota + 1
	OpDelete
)

// String returns the operation name.
func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Op is one path-addressed change.
type Op struct {
	Kind  OpKind
	Path  string
	Value any
}

// Set builds a set operation.
func Set(path string, value any) Op {
	return Op{Kind: OpSet, Path: path, Value: value}
}

// Delete builds a delete operation.
func Delete(path string) Op {
	return Op{Kind: OpDelete, Path: path}
}

// Patch is an ordered set of operations over one document's data. A path
// appears at most once: adding an operation for a path replaces the earlier
// one, so a patch never both sets and deletes the same path.
type Patch struct {
	ops []Op
}

// NewPatch builds a patch from ops in order.
func NewPatch(ops ...Op) Patch {
	var p Patch
	for _, op := range ops {
		p.add(op)
	}
	return p
}

// Set records a set of path to value.
func (p *Patch) Set(path string, value any) {
	p.add(Set(path, value))
}

// Delete records removal of path.
func (p *Patch) Delete(path string) {
	p.add(Delete(path))
}

// Merge appends other's operations; they win over existing ones on the same path.
func (p *Patch) Merge(other Patch) {
	for _, op := range other.ops {
		p.add(op)
	}
}

func (p *Patch) add(op Op) {
	op.Path = strings.TrimSpace(op.Path)
	if op.Path == "" {
		return
	}
	ops := make([]Op, 0, len(p.ops)+1)
	for _, existing := range p.ops {
		if existing.Path != op.Path {
			ops = append(ops, existing)
		}
	}
	p.ops = append(ops, op)
}

// Ops returns a copy of the operations in order.
func (p Patch) Ops() []Op {
	if len(p.ops) == 0 {
		return nil
	}
	out := make([]Op, len(p.ops))
	copy(out, p.ops)
	return out
}

// Len returns the number of operations.
func (p Patch) Len() int {
	return len(p.ops)
}

// Empty reports whether the patch has no operations.
func (p Patch) Empty() bool {
	return len(p.ops) == 0
}

// Lookup returns the operation recorded for path.
func (p Patch) Lookup(path string) (Op, bool) {
	for _, op := range p.ops {
		if op.Path == path {
			return op, true
		}
	}
	return Op{}, false
}

// Apply applies the operations to data in order. Set values are deep-copied.
func (p Patch) Apply(data Fields) error {
	for _, op := range p.ops {
		switch op.Kind {
		case OpSet:
			if err := data.Set(op.Path, CloneValue(op.Value)); err != nil {
				return fmt.Errorf("apply patch: %w", err)
			}
		case OpDelete:
			data.Delete(op.Path)
		default:
			return fmt.Errorf("apply patch: unknown op %s on %s", op.Kind, op.Path)
		}
	}
	return nil
}
