package child

import "github.com/google/shlex"

// shlexSplit splits a command string into argv the way a shell would,
// handling quoting that strings.Fields cannot.
func shlexSplit(line string) ([]string, error) {
	return shlex.Split(line)
}
