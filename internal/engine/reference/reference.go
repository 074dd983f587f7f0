package reference

import (
	"fmt"
	"sort"
	"strings"
)

// AccessKind records how a member was reached.
type AccessKind uint8

const (
	InvokeVirtual AccessKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
	GetStatic
	PutStatic
	GetField
	PutField
	Other
)

var accessNames = [...]string{
	InvokeVirtual:   "INVOKEVIRTUAL",
	InvokeSpecial:   "INVOKESPECIAL",
	InvokeStatic:    "INVOKESTATIC",
	InvokeInterface: "INVOKEINTERFACE",
	GetStatic:       "GETSTATIC",
	PutStatic:       "PUTSTATIC",
	GetField:        "GETFIELD",
	PutField:        "PUTFIELD",
	Other:           "OTHER",
}

func (k AccessKind) String() string {
	if int(k) < len(accessNames) {
		return accessNames[k]
	}
	return fmt.Sprintf("AccessKind(%d)", k)
}

// ParseAccessKind is the inverse of String.
func ParseAccessKind(s string) (AccessKind, error) {
	for i, n := range accessNames {
		if strings.EqualFold(n, s) {
			return AccessKind(i), nil
		}
	}
	return Other, fmt.Errorf("unknown access kind %q", s)
}

// IsField reports whether the kind is a field get or put.
func (k AccessKind) IsField() bool {
	return k >= GetStatic && k <= PutField
}

// Reference is one use of a member. Member is name+descriptor for methods
// and the bare name for fields.
type Reference struct {
	Member string
	Access AccessKind
}

func (r Reference) String() string {
	return r.Member + " -> " + r.Access.String()
}

// MethodMember builds the member signature of a method reference.
func MethodMember(name, descriptor string) string {
	return name + descriptor
}

// Set is a set of references.
type Set map[Reference]struct{}

func NewSet(refs ...Reference) Set {
	s := make(Set, len(refs))
	for _, r := range refs {
		s[r] = struct{}{}
	}
	return s
}

func (s Set) Add(r Reference) {
	s[r] = struct{}{}
}

func (s Set) Has(r Reference) bool {
	_, ok := s[r]
	return ok
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for r := range s {
		out[r] = struct{}{}
	}
	return out
}

// Without returns a new set holding the references of s not in drop.
func (s Set) Without(drop Set) Set {
	out := make(Set, len(s))
	for r := range s {
		if !drop.Has(r) {
			out[r] = struct{}{}
		}
	}
	return out
}

// Sorted returns the references ordered by member then access kind.
func (s Set) Sorted() []Reference {
	out := make([]Reference, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Member != out[j].Member {
			return out[i].Member < out[j].Member
		}
		return out[i].Access < out[j].Access
	})
	return out
}

// Map is a ReferenceMap: class name to the references made against it. An
// empty set records a type-only reference.
type Map map[string]Set

// Touch registers class with no member use if it is not present yet.
func (m Map) Touch(class string) {
	if _, ok := m[class]; !ok {
		m[class] = Set{}
	}
}

func (m Map) Add(class string, r Reference) {
	s, ok := m[class]
	if !ok {
		s = Set{}
		m[class] = s
	}
	s.Add(r)
}

// AddSet unions refs into the entry for class, registering the class even
// when refs is empty.
func (m Map) AddSet(class string, refs Set) {
	m.Touch(class)
	for r := range refs {
		m[class][r] = struct{}{}
	}
}

// Merge unions other into m. The operation is commutative and associative.
func (m Map) Merge(other Map) {
	for class, refs := range other {
		m.AddSet(class, refs)
	}
}

func (m Map) Clone() Map {
	out := make(Map, len(m))
	for class, refs := range m {
		out[class] = refs.Clone()
	}
	return out
}

// Classes returns the class names in sorted order.
func (m Map) Classes() []string {
	out := make([]string, 0, len(m))
	for class := range m {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of references across all classes.
func (m Map) Len() int {
	n := 0
	for _, refs := range m {
		n += len(refs)
	}
	return n
}

// Members returns the member signatures recorded for class.
func (m Map) Members(class string) map[string]struct{} {
	out := make(map[string]struct{}, len(m[class]))
	for r := range m[class] {
		out[r.Member] = struct{}{}
	}
	return out
}
