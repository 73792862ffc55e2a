package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func promptConfirm(prompt string) (bool, error) {
	if !stdinIsTTY() {
		return false, errors.New("confirmation required (rerun with --yes in non-interactive mode)")
	}
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func stdinIsTTY() bool {
	return isCharDevice(os.Stdin)
}

func stdoutIsTTY() bool {
	return isCharDevice(os.Stdout)
}

func isCharDevice(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// formatTransfer renders "read / total" or just "read" when total is unknown.
func formatTransfer(read, total int64) string {
	if total <= 0 {
		return formatBytes(read)
	}
	return formatBytes(read) + " / " + formatBytes(total)
}
