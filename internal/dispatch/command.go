package dispatch

import "strings"

// maxCommandArgs bounds how many tokens after the command name are passed
// through as arguments.
const maxCommandArgs = 2

// Command is a bot command extracted from a comment body, e.g.
// "/warden build rawhide" yields {Name: "build", Args: ["rawhide"]}.
type Command struct {
	Name string
	Args []string
}

// ParseCommand scans a comment body line by line for the first line that
// starts with the bot mention prefix followed by a command token. Lines
// without the prefix are skipped; an empty or prefix-less comment yields no
// command.
func ParseCommand(comment, prefix string) (Command, bool) {
	if strings.TrimSpace(comment) == "" {
		return Command{}, false
	}
	for _, line := range strings.Split(comment, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != prefix {
			continue
		}
		args := fields[2:]
		if len(args) > maxCommandArgs {
			args = args[:maxCommandArgs]
		}
		return Command{Name: fields[1], Args: args}, true
	}
	return Command{}, false
}

// CheckPrefix extracts the handler prefix from a full check name, e.g.
// "build:fedora-40-x86_64" yields "build". A check name without a separator
// is its own prefix.
func CheckPrefix(checkName string) string {
	if i := strings.IndexByte(checkName, ':'); i >= 0 {
		return checkName[:i]
	}
	return checkName
}
