package facts

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var errMalformedLine = errors.New("malformed fact line")

// ErrInvalidScope is returned for a merchant scope that cannot be used as a
// file name or a bare atom in a fact line.
var ErrInvalidScope = errors.New("invalid merchant scope")

// Encode renders f as fact log lines for the given merchant label. A MenuItem
// renders as three lines; every other kind renders as one.
func Encode(label string, f Fact) ([]string, error) {
	switch f.Kind {
	case KindMenuItem:
		if err := checkSymbol(f.Slug); err != nil {
			return nil, err
		}
		return []string{
			fmt.Sprintf("(menu %s %s)", label, f.Slug),
			fmt.Sprintf("(item-display %s %s)", f.Slug, quote(f.Display)),
			fmt.Sprintf("(price %s %s)", f.Slug, quote(f.Price)),
		}, nil

	case KindItemDisplay:
		return slugLine(f.Kind, f.Slug, f.Display)

	case KindPriceUpdate:
		return slugLine(f.Kind, f.Slug, f.Price)

	case KindItemDescription:
		return slugLine(f.Kind, f.Slug, f.Value)

	case KindRemovedItem:
		if err := checkSymbol(f.Slug); err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("(removed-menu %s %s)", label, f.Slug)}, nil

	case KindWallet, KindDescription, KindHours, KindLocation, KindCategory:
		return []string{fmt.Sprintf("(%s %s %s)", f.Kind, label, quote(f.Value))}, nil

	default:
		return nil, fmt.Errorf("cannot encode fact of %s", f.Kind)
	}
}

func slugLine(k Kind, slug, value string) ([]string, error) {
	if err := checkSymbol(slug); err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("(%s %s %s)", k, slug, quote(value))}, nil
}

// Decode parses one fact log line. Blank lines, comments, malformed and
// unknown relations all return ok == false.
func Decode(line string) (Fact, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Fact{}, false
	}

	atoms, err := parseExpr(line)
	if err != nil || len(atoms) != 3 {
		return Fact{}, false
	}

	kind, ok := ParseKind(atoms[0])
	if !ok {
		return Fact{}, false
	}

	first, second := atoms[1], atoms[2]
	switch kind {
	case KindMenuItem:
		return Fact{Kind: kind, Slug: second}, true
	case KindRemovedItem:
		return RemovedItem(second), true
	case KindItemDisplay:
		return ItemDisplay(first, second), true
	case KindPriceUpdate:
		return PriceUpdate(first, second), true
	case KindItemDescription:
		return ItemDescription(first, second), true
	default:
		return Fact{Kind: kind, Value: second}, true
	}
}

// SanitizeLabel normalizes a merchant scope for file names and log lines:
// trimmed, with spaces replaced by underscores.
func SanitizeLabel(scope string) string {
	return strings.ReplaceAll(strings.TrimSpace(scope), " ", "_")
}

// Label sanitizes scope and checks that the result is safe as a file name
// component and as a bare atom.
func Label(scope string) (string, error) {
	label := SanitizeLabel(scope)
	if label == "" {
		return "", ErrEmptyScope
	}
	if strings.Contains(label, "..") || strings.ContainsAny(label, `/\()"`) ||
		strings.IndexFunc(label, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, label)
	}
	return label, nil
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

func checkSymbol(s string) error {
	if s == "" || strings.ContainsAny(s, " \t\r\n()\"") {
		return fmt.Errorf("invalid slug %q", s)
	}
	return nil
}

// parseExpr splits a single-level S-expression into its atoms. Quoted atoms
// are unescaped; bare atoms end at whitespace or a parenthesis.
func parseExpr(line string) ([]string, error) {
	if len(line) < 2 || line[0] != '(' || line[len(line)-1] != ')' {
		return nil, errMalformedLine
	}
	body := line[1 : len(line)-1]

	var atoms []string
	for i := 0; i < len(body); {
		switch c := body[i]; {
		case c == ' ' || c == '\t':
			i++

		case c == '"':
			var sb strings.Builder
			i++
			closed := false
			for i < len(body) {
				ch := body[i]
				if ch == '\\' && i+1 < len(body) {
					switch esc := body[i+1]; esc {
					case 'n':
						sb.WriteByte('\n')
					case 'r':
						sb.WriteByte('\r')
					default:
						sb.WriteByte(esc)
					}
					i += 2
					continue
				}
				if ch == '"' {
					closed = true
					i++
					break
				}
				sb.WriteByte(ch)
				i++
			}
			if !closed {
				return nil, errMalformedLine
			}
			atoms = append(atoms, sb.String())

		case c == '(' || c == ')':
			return nil, errMalformedLine

		default:
			start := i
			for i < len(body) && !strings.ContainsRune(" \t()\"", rune(body[i])) {
				i++
			}
			atoms = append(atoms, body[start:i])
		}
	}
	return atoms, nil
}
