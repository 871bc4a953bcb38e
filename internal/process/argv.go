package process

import (
	"os"
	"strings"
)

// argv builds the child's argument vector. The command name is argv[0],
// as a shell would pass it.
func argv(command string, args []string) []string {
	out := make([]string, 0, len(args)+1)
	out = append(out, command)
	return append(out, args...)
}

// environSnapshot copies the current process environment.
// Later changes to the parent environment do not reach the handle.
func environSnapshot() []string {
	env := os.Environ()
	out := make([]string, len(env))
	copy(out, env)
	return out
}

// validEnvName rejects names that cannot round-trip through a
// "name=value" entry.
func validEnvName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "=\x00")
}

// upsertEnv replaces the first entry for name, or appends one.
// Returns false, leaving env untouched, when the pair cannot be encoded.
func upsertEnv(env []string, name, value string) ([]string, bool) {
	if !validEnvName(name) || strings.ContainsRune(value, 0) {
		return env, false
	}

	entry := name + "=" + value
	prefix := name + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = entry
			return env, true
		}
	}
	return append(env, entry), true
}

// lookupEnv returns the value for name in env.
func lookupEnv(env []string, name string) (string, bool) {
	prefix := name + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}
