// Package script hosts systems whose logic lives outside the compiled program. A script is a
// manifest that declares components, resources and systems, plus one handler per system that the
// embedding interpreter provides. The host compiles manifests against a split of the world's
// registry, registers the systems with the world's scheduler under their declared access and
// swaps their logic on reload without disturbing ids.
package script

import (
	"github.com/alecthomas/participle/v2"
	"github.com/rotisserie/eris"

	"github.com/plus3/loom/ecs"
)

// Grammar:
//
//	component Health
//	resource Clock
//	system regen in update exclusive {
//		write Health
//		read Regen, Position
//		optional Regen
//		with Alive
//		without Poison
//		resource read Clock
//		where "Health.hp < Health.max"
//	}
type manifestAST struct {
	Decls []*declAST `@@*`
}

type declAST struct {
	Component *componentAST    `  @@`
	Resource  *resourceDeclAST `| @@`
	System    *systemAST       `| @@`
}

type componentAST struct {
	Name string `"component" @Ident`
}

type resourceDeclAST struct {
	Name string `"resource" @Ident`
}

type systemAST struct {
	Name      string       `"system" @Ident`
	Stage     string       `"in" @Ident`
	Exclusive bool         `@"exclusive"?`
	Clauses   []*clauseAST `"{" @@* "}"`
}

type resourceClauseAST struct {
	Access string   `"resource" @("read" | "write")`
	Names  []string `@Ident ("," @Ident)*`
}

type clauseAST struct {
	Resource *resourceClauseAST `  @@`
	Where    *string            `| "where" @String`
	Kind     string             `| @("read" | "write" | "with" | "without" | "optional")`
	Names    []string           `  @Ident ("," @Ident)*`
}

var manifestParser = participle.MustBuild[manifestAST](participle.Unquote("String"))

// Manifest is a parsed script manifest.
type Manifest struct {
	Components []string
	Resources  []string
	Systems    []SystemDecl
}

// SystemDecl is one declared system, still by name.
type SystemDecl struct {
	Name          string
	Stage         ecs.Stage
	Exclusive     bool
	Read          []string
	Write         []string
	Optional      []string
	With          []string
	Without       []string
	ResourceRead  []string
	ResourceWrite []string
	Where         string
}

// ParseManifest parses manifest source text.
func ParseManifest(source string) (*Manifest, error) {
	ast, err := manifestParser.ParseString("", source)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse manifest")
	}

	m := &Manifest{}
	seen := make(map[string]bool)
	for _, decl := range ast.Decls {
		switch {
		case decl.Component != nil:
			m.Components = append(m.Components, decl.Component.Name)
		case decl.Resource != nil:
			m.Resources = append(m.Resources, decl.Resource.Name)
		case decl.System != nil:
			sys, err := systemFromAST(decl.System)
			if err != nil {
				return nil, err
			}
			if seen[sys.Name] {
				return nil, eris.Errorf("system %s declared twice", sys.Name)
			}
			seen[sys.Name] = true
			m.Systems = append(m.Systems, sys)
		}
	}
	return m, nil
}

func systemFromAST(ast *systemAST) (SystemDecl, error) {
	stage, err := ecs.ParseStage(ast.Stage)
	if err != nil {
		return SystemDecl{}, eris.Wrapf(err, "system %s", ast.Name)
	}
	decl := SystemDecl{Name: ast.Name, Stage: stage, Exclusive: ast.Exclusive}

	for _, c := range ast.Clauses {
		switch {
		case c.Resource != nil:
			if c.Resource.Access == "write" {
				decl.ResourceWrite = append(decl.ResourceWrite, c.Resource.Names...)
			} else {
				decl.ResourceRead = append(decl.ResourceRead, c.Resource.Names...)
			}
		case c.Where != nil:
			if decl.Where != "" {
				return SystemDecl{}, eris.Errorf("system %s has more than one where clause", ast.Name)
			}
			decl.Where = *c.Where
		case c.Kind == "read":
			decl.Read = append(decl.Read, c.Names...)
		case c.Kind == "write":
			decl.Write = append(decl.Write, c.Names...)
		case c.Kind == "optional":
			decl.Optional = append(decl.Optional, c.Names...)
		case c.Kind == "with":
			decl.With = append(decl.With, c.Names...)
		case c.Kind == "without":
			decl.Without = append(decl.Without, c.Names...)
		}
	}

	for _, name := range decl.Read {
		for _, w := range decl.Write {
			if name == w {
				return SystemDecl{}, eris.Wrapf(ecs.ErrAccessOverlap, "system %s: component %s", ast.Name, name)
			}
		}
	}
	return decl, nil
}
