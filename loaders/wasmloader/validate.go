package wasmloader

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/resource-pool/errors"
)

// Sig is one function signature declared in WIT text.
type Sig struct {
	Params  []wit.Type
	Results []wit.Type
}

// funcDeclPattern matches WIT function declarations:
// [export] name: func(params) -> result;
var funcDeclPattern = regexp.MustCompile(`(?:export\s+)?([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

// RequireExports returns an asset validator that rejects compiled
// modules missing any of the named exports. For use as a handler
// Spec.Validate or a typed reference predicate.
func RequireExports(names ...string) func(asset any) error {
	return func(asset any) error {
		m, ok := asset.(*Module)
		if !ok {
			return errors.Validation(errors.PhaseValidate, "", "asset is not a compiled module")
		}
		for _, name := range names {
			if !m.HasExport(name) {
				return errors.Validation(errors.PhaseValidate, string(m.key), "missing export "+name)
			}
		}
		return nil
	}
}

// RequireWorld parses WIT function declarations and returns a
// validator requiring each declared function to be exported by the
// compiled module. Malformed WIT is rejected up front.
func RequireWorld(witText string) (func(asset any) error, error) {
	sigs, err := ParseWorld(witText)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(sigs))
	for name := range sigs {
		names = append(names, name)
	}
	return RequireExports(names...), nil
}

// ParseWorld extracts function signatures from WIT text, keyed by
// function name. Parameter and result types go through the WIT type
// parser so bad declarations fail here rather than at call time.
func ParseWorld(witText string) (map[string]Sig, error) {
	sigs := make(map[string]Sig)

	for _, match := range funcDeclPattern.FindAllStringSubmatch(witText, -1) {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := ""
		if len(match) > 3 {
			resultStr = strings.TrimSpace(match[3])
		}

		var sig Sig

		if paramsStr != "" {
			for _, p := range splitTypeList(paramsStr) {
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					typStr = strings.TrimSpace(p[idx+1:])
				}
				t, err := wit.ParseType(typStr)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseValidate, errors.KindValidation, err, "parse param type "+typStr)
				}
				sig.Params = append(sig.Params, t)
			}
		}

		if resultStr != "" && resultStr != "()" {
			if strings.HasPrefix(resultStr, "(") && strings.HasSuffix(resultStr, ")") {
				inner := strings.TrimPrefix(strings.TrimSuffix(resultStr, ")"), "(")
				for _, part := range splitTypeList(inner) {
					t, err := wit.ParseType(strings.TrimSpace(part))
					if err != nil {
						return nil, errors.Wrap(errors.PhaseValidate, errors.KindValidation, err, "parse result type "+part)
					}
					sig.Results = append(sig.Results, t)
				}
			} else {
				t, err := wit.ParseType(resultStr)
				if err != nil {
					return nil, errors.Wrap(errors.PhaseValidate, errors.KindValidation, err, "parse result type "+resultStr)
				}
				sig.Results = []wit.Type{t}
			}
		}

		sigs[name] = sig
	}

	if len(sigs) == 0 {
		return nil, errors.Validation(errors.PhaseValidate, "", "no function declarations in WIT text")
	}
	return sigs, nil
}

// splitTypeList splits a comma separated type list, respecting nested
// parens in compound types like tuple<a, b>.
func splitTypeList(s string) []string {
	var result []string
	var current strings.Builder
	depth := 0

	for _, ch := range s {
		switch ch {
		case '(', '<':
			depth++
			current.WriteRune(ch)
		case ')', '>':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if part := strings.TrimSpace(current.String()); part != "" {
					result = append(result, part)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}

	if part := strings.TrimSpace(current.String()); part != "" {
		result = append(result, part)
	}
	return result
}
