package capture

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// renderProgress draws a bar of '=' across the terminal, paced so that the
// last character lands after roughly seconds. Purely cosmetic: the capture
// is timed by its read count, not by this.
func renderProgress(seconds float64) {
	width := terminalWidth()
	if width <= 0 {
		width = 80
	}
	step := time.Duration(seconds / float64(width) * float64(time.Second))
	for i := 0; i < width; i++ {
		fmt.Fprint(os.Stdout, "=")
		time.Sleep(step)
	}
	fmt.Fprintln(os.Stdout)
}

func terminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return 0
	}
	return int(ws.Col)
}
