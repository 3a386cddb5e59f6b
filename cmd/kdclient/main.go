// Command kdclient is a host-side terminal client for the kernel
// debugger transport described in SPEC_FULL.md's supplemented
// kdebug export/import table (kernel/kdebug) and grounded, for its
// terminal handling, on gmofishsauce-wut4's emul/main.go
// setupTerminal/restoreTerminal pattern: put the local terminal into
// raw mode, then shuttle bytes between stdin/stdout and the wire the
// kernel's debugger transport listens on (a QEMU chardev socket or a
// real serial port), exactly as a minicom-style serial console would.
//
// Raw mode matters here for the same reason it does in the emulator:
// the debugger transport expects to see keystrokes (including control
// characters) as the attached user types them, not line-buffered and
// echoed by the host's tty driver.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

var (
	addr       = flag.String("addr", "", "TCP address of the debugger transport (host:port), e.g. a QEMU chardev socket")
	serialPort = flag.String("serial", "", "path to a serial device to use instead of -addr")
	escapeByte = flag.Uint("escape", 0x1d, "byte value that, when typed alone at the start of a line, detaches the client (default Ctrl-])")
)

var savedState *term.State

func setupTerminal() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("get terminal state: %w", err)
	}
	savedState = state

	if _, err := term.MakeRaw(int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("set raw mode: %w", err)
	}
	return nil
}

func restoreTerminal() {
	if savedState != nil && term.IsTerminal(int(os.Stdin.Fd())) {
		term.Restore(int(os.Stdin.Fd()), savedState)
	}
}

// dial opens the wire to the debugger transport: either a TCP socket (the
// usual QEMU -chardev socket setup) or a real serial device opened as a
// plain file.
func dial() (io.ReadWriteCloser, error) {
	switch {
	case *serialPort != "":
		f, err := os.OpenFile(*serialPort, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("open serial port: %w", err)
		}
		return f, nil
	case *addr != "":
		conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("dial transport: %w", err)
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("one of -addr or -serial is required")
	}
}

// watchWindowSize reports terminal resizes to the transport: the kernel
// debugger has no notion of screen geometry on its own, so a window-size
// line is the only way the remote side learns how wide to wrap long
// output. golang.org/x/sys/unix.IoctlGetWinsize is the piece x/term has no
// equivalent for; x/term only reads the size once, it does not watch for
// SIGWINCH.
func watchWindowSize(w io.Writer) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, unix.SIGWINCH)

	report := func() {
		ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "\x1bkd-resize %d %d\x1b\\", ws.Col, ws.Row)
	}

	report()
	go func() {
		for range ch {
			report()
		}
	}()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -addr host:port | -serial /dev/ttyXX\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	conn, err := dial()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kdclient: %s\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := setupTerminal(); err != nil {
		fmt.Fprintf(os.Stderr, "kdclient: %s\n", err)
		os.Exit(1)
	}
	defer restoreTerminal()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		restoreTerminal()
		os.Exit(130)
	}()

	watchWindowSize(conn)

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(conn, &escapeFilter{r: os.Stdin, escape: byte(*escapeByte), atLineStart: true})
		done <- struct{}{}
	}()
	go func() {
		io.Copy(os.Stdout, conn)
		done <- struct{}{}
	}()
	<-done

	restoreTerminal()
	fmt.Fprintln(os.Stderr, "\nkdclient: connection closed")
}
