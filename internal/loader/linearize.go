package loader

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// linearizer computes C3 linearizations over contract names. Bases listed
// later in an "is" list are more derived, so they come first in the result.
type linearizer struct {
	bases    func(name string) ([]string, bool)
	done     map[string][]string
	visiting map[string]bool
	stack    []string
}

func newLinearizer(bases func(name string) ([]string, bool)) *linearizer {
	return &linearizer{
		bases:    bases,
		done:     make(map[string][]string),
		visiting: make(map[string]bool),
	}
}

// linearize returns name followed by its ancestors, most basic last.
func (l *linearizer) linearize(name string) ([]string, error) {
	if out, ok := l.done[name]; ok {
		return out, nil
	}
	if l.visiting[name] {
		return nil, errors.Newf("cyclic inheritance: %s", strings.Join(append(l.stack, name), " -> "))
	}
	direct, ok := l.bases(name)
	if !ok {
		return nil, errors.Newf("unknown contract %q", name)
	}

	l.visiting[name] = true
	l.stack = append(l.stack, name)
	defer func() {
		delete(l.visiting, name)
		l.stack = l.stack[:len(l.stack)-1]
	}()

	var seqs [][]string
	for i := len(direct) - 1; i >= 0; i-- {
		lin, err := l.linearize(direct[i])
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, append([]string(nil), lin...))
	}
	tail := make([]string, len(direct))
	for i := range direct {
		tail[i] = direct[len(direct)-1-i]
	}
	seqs = append(seqs, tail)

	merged, err := c3merge(seqs)
	if err != nil {
		return nil, errors.Wrapf(err, "contract %s", name)
	}
	out := append([]string{name}, merged...)
	l.done[name] = out
	return out, nil
}

func c3merge(seqs [][]string) ([]string, error) {
	var out []string
	for {
		seqs = dropEmpty(seqs)
		if len(seqs) == 0 {
			return out, nil
		}
		head := ""
		for _, s := range seqs {
			if !inAnyTail(s[0], seqs) {
				head = s[0]
				break
			}
		}
		if head == "" {
			return nil, errors.New("linearization of inheritance graph impossible")
		}
		out = append(out, head)
		for i, s := range seqs {
			if s[0] == head {
				seqs[i] = s[1:]
			}
		}
	}
}

func dropEmpty(seqs [][]string) [][]string {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func inAnyTail(name string, seqs [][]string) bool {
	for _, s := range seqs {
		for _, n := range s[1:] {
			if n == name {
				return true
			}
		}
	}
	return false
}
