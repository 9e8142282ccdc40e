package fcatcli

import (
	"strings"

	"github.com/spf13/cobra"
)

// RewriteArgsForImplicitQ turns `fcat foo` into `fcat q foo` when the first
// positional argument is not a known command.
func RewriteArgsForImplicitQ(root *cobra.Command, args []string) []string {
	if root == nil || len(args) == 0 {
		return args
	}

	first, ok := firstPositionalArgAfterFlags(args)
	if !ok {
		return args
	}

	known := knownTopLevelCommands(root)
	if known[strings.TrimSpace(first)] {
		return args
	}

	return append([]string{"q"}, args...)
}

func knownTopLevelCommands(root *cobra.Command) map[string]bool {
	known := map[string]bool{
		"help":       true,
		"completion": true,
	}

	if root == nil {
		return known
	}

	for _, c := range root.Commands() {
		if c == nil {
			continue
		}
		known[c.Name()] = true
		for _, a := range c.Aliases {
			known[a] = true
		}
	}

	return known
}

// valueFlags are the long flags, global or of q, that consume the next arg.
var valueFlags = map[string]bool{
	"config": true, "database": true, "state-dir": true, "backend": true, "log-level": true,
	"page": true, "page-size": true, "sort": true, "type": true, "source": true, "folder": true,
	"ext": true, "mime": true, "min-mb": true, "max-mb": true,
	"created-after": true, "created-before": true, "modified-after": true, "modified-before": true,
}

func firstPositionalArgAfterFlags(args []string) (string, bool) {
	skipNext := false
	positionalOnly := false

	for i := 0; i < len(args); i++ {
		a := strings.TrimSpace(args[i])
		if a == "" {
			continue
		}
		if skipNext {
			skipNext = false
			continue
		}

		if a == "--" {
			positionalOnly = true
			continue
		}

		if positionalOnly {
			return a, true
		}

		if strings.HasPrefix(a, "--") {
			if strings.Contains(a, "=") {
				continue
			}

			name := strings.TrimPrefix(a, "--")
			switch {
			case valueFlags[name]:
				skipNext = true
			case name == "explain":
				// Optional value; only consume known formats.
				if i+1 < len(args) {
					next := strings.TrimSpace(args[i+1])
					if next == "text" || next == "json" {
						skipNext = true
					}
				}
			}
			continue
		}

		if strings.HasPrefix(a, "-") && a != "-" {
			// -d and -p take values; -dfoo style carries it inline.
			if len(a) == 2 {
				switch a[1] {
				case 'd', 'p':
					skipNext = true
				}
			}
			continue
		}

		return a, true
	}

	return "", false
}
