package cli

import "strings"

// legacyFlags maps the single-dash spelling of the classic X11 lndir to the
// flags of this command.
var legacyFlags = map[string]string{
	"-silent":      "--silent",
	"-ignorelinks": "--ignorelinks",
	"-withrevinfo": "--withrevinfo",
	"-maxdepth":    "--maxdepth",
}

// valueFlags take their value from the next argument when not given as
// --flag=value.
var valueFlags = map[string]bool{
	"--maxdepth": true,
	"--config":   true,
	"--log-file": true,
}

// NormalizeArgs rewrites legacy single-dash flags to their double-dash form.
// Rewriting stops at "--" or at the first positional argument, after which
// everything is a path.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" || !strings.HasPrefix(arg, "-") || arg == "-" {
			return append(out, args[i:]...)
		}

		name, value, hasValue := strings.Cut(arg, "=")
		if long, ok := legacyFlags[name]; ok {
			name = long
		}
		if hasValue {
			out = append(out, name+"="+value)
			continue
		}

		out = append(out, name)
		if valueFlags[name] && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}

	return out
}
