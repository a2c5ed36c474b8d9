package loader

import (
	"gopkg.in/yaml.v3"
)

// mark is the line/column of a YAML node.
type mark struct {
	line, column int
}

func markOf(n *yaml.Node) mark { return mark{n.Line, n.Column} }

// fileDesc is one contract description file.
type fileDesc struct {
	Imports   []importDesc   `yaml:"imports"`
	Pragmas   []pragmaDesc   `yaml:"pragmas"`
	Contracts []contractDesc `yaml:"contracts"`
}

type importDesc struct {
	Path string
	at   mark
}

func (d *importDesc) UnmarshalYAML(n *yaml.Node) error {
	d.at = markOf(n)
	return n.Decode(&d.Path)
}

type pragmaDesc struct {
	Text string
	at   mark
}

func (d *pragmaDesc) UnmarshalYAML(n *yaml.Node) error {
	d.at = markOf(n)
	return n.Decode(&d.Text)
}

type contractDesc struct {
	Name      string         `yaml:"name"`
	Is        []string       `yaml:"is"`
	Structs   []structDesc   `yaml:"structs"`
	State     []varDesc      `yaml:"state"`
	Functions []functionDesc `yaml:"functions"`
	at        mark
}

func (d *contractDesc) UnmarshalYAML(n *yaml.Node) error {
	type plain contractDesc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at = markOf(n)
	return nil
}

type structDesc struct {
	Name    string    `yaml:"name"`
	Members []varDesc `yaml:"members"`
	at      mark
}

func (d *structDesc) UnmarshalYAML(n *yaml.Node) error {
	type plain structDesc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at = markOf(n)
	return nil
}

type varDesc struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	at   mark
}

func (d *varDesc) UnmarshalYAML(n *yaml.Node) error {
	type plain varDesc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at = markOf(n)
	return nil
}

type functionDesc struct {
	Name       string    `yaml:"name"`
	Kind       string    `yaml:"kind"`
	Visibility string    `yaml:"visibility"`
	Mutability string    `yaml:"mutability"`
	Inline     bool      `yaml:"inline"`
	Override   bool      `yaml:"override"`
	ID         *uint32   `yaml:"id"`
	Params     []varDesc `yaml:"params"`
	Returns    []varDesc `yaml:"returns"`
	at         mark
}

func (d *functionDesc) UnmarshalYAML(n *yaml.Node) error {
	type plain functionDesc
	if err := n.Decode((*plain)(d)); err != nil {
		return err
	}
	d.at = markOf(n)
	return nil
}
