package process

// Run starts command, discards its output and returns its exit outcome.
func Run(command string, args []string) (int, error) {
	h := New(command, args, CaptureNone)
	defer h.Close()

	if _, err := h.Spawn(); err != nil {
		return 0, err
	}
	return h.Wait(WaitForever, DefaultPollInterval)
}

// RunStdout starts command and returns its exit outcome and stdout.
func RunStdout(command string, args []string) (int, string, error) {
	h := New(command, args, CaptureOut)
	defer h.Close()

	if _, err := h.Spawn(); err != nil {
		return 0, "", err
	}
	out := h.ReadAllStandardOutput()
	code, err := h.Wait(WaitForever, DefaultPollInterval)
	out += h.ReadAllStandardOutput()
	return code, out, err
}

// RunStdoutStderr starts command and returns its exit outcome, stdout and
// stderr.
func RunStdoutStderr(command string, args []string) (int, string, string, error) {
	h := New(command, args, CaptureOut|CaptureErr)
	defer h.Close()

	if _, err := h.Spawn(); err != nil {
		return 0, "", "", err
	}
	out := h.ReadAllStandardOutput()
	errOut := h.ReadAllStandardError()
	code, err := h.Wait(WaitForever, DefaultPollInterval)
	out += h.ReadAllStandardOutput()
	errOut += h.ReadAllStandardError()
	return code, out, errOut, err
}
