package accesskit

import (
	"strings"
)

// ParseRequirement parses the compact requirement syntax used by config
// files into the native sum type:
//
//	authenticated
//	permission(workers.manage)
//	anyPermission(workers.view, workers.manage)
//	allPermissions(ledger.view, ledger.post)
//	component(communications)
//	ownership(employer)            // target entity id
//	ownership(employer, id)        // named id parameter
//	custom(pending-rewrite, "not implemented yet")
//	anyOf(permission(admin), allOf(authenticated, ownership(worker)))
//
// Unquoted arguments are trimmed identifiers; composite arguments recurse.
func ParseRequirement(s string) (Requirement, error) {
	p := &reqParser{input: s}
	req, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, configErrorf("unexpected trailing input %q in requirement %q", p.input[p.pos:], s)
	}
	return req, nil
}

type reqParser struct {
	input string
	pos   int
}

func (p *reqParser) parse() (Requirement, error) {
	name := p.readIdent()
	if name == "" {
		return nil, configErrorf("expected a condition at offset %d in %q", p.pos, p.input)
	}
	switch name {
	case "authenticated":
		return &Authenticated{}, nil
	case "permission":
		args, err := p.readArgs(1, 1)
		if err != nil {
			return nil, err
		}
		return &HasPermission{Key: args[0]}, nil
	case "anyPermission":
		args, err := p.readArgs(1, -1)
		if err != nil {
			return nil, err
		}
		return &AnyPermission{Keys: args}, nil
	case "allPermissions":
		args, err := p.readArgs(1, -1)
		if err != nil {
			return nil, err
		}
		return &AllPermissions{Keys: args}, nil
	case "component":
		args, err := p.readArgs(1, 1)
		if err != nil {
			return nil, err
		}
		return &ComponentEnabled{ID: args[0]}, nil
	case "ownership":
		args, err := p.readArgs(1, 2)
		if err != nil {
			return nil, err
		}
		cond := &OwnsResource{ResourceType: args[0]}
		if len(args) == 2 {
			cond.IDParam = args[1]
		}
		return cond, nil
	case "custom":
		args, err := p.readArgs(1, 2)
		if err != nil {
			return nil, err
		}
		cond := &CustomCheck{ID: args[0]}
		if len(args) == 2 {
			cond.Reason = args[1]
		}
		return cond, nil
	case "anyOf":
		children, err := p.readChildren()
		if err != nil {
			return nil, err
		}
		return &AnyOf{Children: children}, nil
	case "allOf":
		children, err := p.readChildren()
		if err != nil {
			return nil, err
		}
		return &AllOf{Children: children}, nil
	default:
		return nil, configErrorf("unknown condition kind %q in %q", name, p.input)
	}
}

func (p *reqParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *reqParser) readIdent() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		ch := p.input[p.pos]
		if ch == '(' || ch == ')' || ch == ',' || ch == ' ' || ch == '\t' || ch == '\n' {
			break
		}
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *reqParser) expect(ch byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != ch {
		return configErrorf("expected %q at offset %d in %q", string(ch), p.pos, p.input)
	}
	p.pos++
	return nil
}

// readArgs reads a parenthesized list of scalar arguments. max < 0 means
// unbounded.
func (p *reqParser) readArgs(min, max int) ([]string, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var args []string
	for {
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ')' {
			p.pos++
			break
		}
		arg, err := p.readScalar()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		break
	}
	if len(args) < min || (max >= 0 && len(args) > max) {
		return nil, configErrorf("wrong number of arguments (%d) in %q", len(args), p.input)
	}
	return args, nil
}

func (p *reqParser) readScalar() (string, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		end := strings.IndexByte(p.input[p.pos+1:], '"')
		if end < 0 {
			return "", configErrorf("unterminated string at offset %d in %q", p.pos, p.input)
		}
		s := p.input[p.pos+1 : p.pos+1+end]
		p.pos += end + 2
		return s, nil
	}
	s := p.readIdent()
	if s == "" {
		return "", configErrorf("expected an argument at offset %d in %q", p.pos, p.input)
	}
	return s, nil
}

func (p *reqParser) readChildren() ([]Requirement, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var children []Requirement
	for {
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ')' {
			p.pos++
			return children, nil
		}
		child, err := p.parse()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		p.skipSpace()
		if p.pos < len(p.input) && p.input[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return children, nil
	}
}
