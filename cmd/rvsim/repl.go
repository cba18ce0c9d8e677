package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/zaynotley/rv64sim/internal/machine"
)

// replCmd is the interactive entry point: one Machine lives for the
// whole session and every command is a line typed at the prompt,
// dispatched by name.
func replCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl [file]",
		Short: "Interactive session: load, step, run, break, regs, mem, show-stack, cache_sim",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := machine.New()
			if len(args) == 1 {
				if err := m.Load(args[0]); err != nil {
					fmt.Fprintf(os.Stderr, "load %s: %s\n", args[0], err)
				} else {
					fmt.Printf("loaded %s: %d instructions\n", args[0], len(m.Instructions))
				}
			}
			return runREPL(m)
		},
	}
}

// runREPL puts stdin into raw mode so backspace/control keys behave,
// reads one line at a time, and dispatches it against m until "exit".
func runREPL(m *machine.Machine) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return runScripted(m, os.Stdin)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("repl: failed to set raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	fmt.Print("rvsim> ")
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return nil
		}
		c := buf[0]
		switch {
		case c == '\r' || c == '\n':
			fmt.Print("\r\n")
			text := line.String()
			line.Reset()
			if dispatch(m, text) {
				return nil
			}
			fmt.Print("rvsim> ")
		case c == 127 || c == 8: // backspace/delete
			if line.Len() > 0 {
				s := line.String()
				line.Reset()
				line.WriteString(s[:len(s)-1])
				fmt.Print("\b \b")
			}
		case c == 3: // Ctrl-C
			fmt.Print("\r\n")
			return nil
		case c == 4: // Ctrl-D
			fmt.Print("\r\n")
			return nil
		case c >= 0x20 && c < 0x7f:
			line.WriteByte(c)
			os.Stdout.Write(buf)
		}
	}
}

// runScripted reads commands line by line without raw mode, for piped
// or redirected stdin (tests, CI, non-interactive batch input).
func runScripted(m *machine.Machine, in *os.File) error {
	data, err := readAll(in)
	if err != nil {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if dispatch(m, strings.TrimRight(line, "\r")) {
			return nil
		}
	}
	return nil
}

func readAll(f *os.File) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := f.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			return buf, nil
		}
	}
}

// dispatch parses and executes one command line against m. Returns true
// when the session should end ("exit").
func dispatch(m *machine.Machine, input string) bool {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "load":
		if len(args) < 1 {
			fmt.Println("usage: load <file>")
			return false
		}
		if err := m.Load(args[0]); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("loaded: %d instructions\n", len(m.Instructions))

	case "step":
		msg, ran := m.Step()
		if !ran {
			fmt.Println(msg)
			return false
		}
		fmt.Printf("PC=0x%X\n", m.CPU.PC)

	case "run":
		if msg := m.Run(); msg != "" {
			fmt.Println(msg)
		}

	case "break":
		if len(args) < 1 {
			fmt.Println("usage: break <line>")
			return false
		}
		line, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("invalid line %q\n", args[0])
			return false
		}
		if err := m.SetBreak(line); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("breakpoint set at line %d\n", line)

	case "del":
		if len(args) < 2 || strings.ToLower(args[0]) != "break" {
			fmt.Println("usage: del break <line>")
			return false
		}
		line, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Printf("invalid line %q\n", args[1])
			return false
		}
		if err := m.ClearBreak(line); err != nil {
			fmt.Println(err)
			return false
		}
		fmt.Printf("breakpoint cleared at line %d\n", line)

	case "regs":
		printRegs(m)

	case "mem":
		if len(args) < 2 {
			fmt.Println("usage: mem <addr> <n>")
			return false
		}
		addr, err1 := strconv.ParseUint(args[0], 0, 32)
		n, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			fmt.Println("usage: mem <addr> <n>")
			return false
		}
		fmt.Println(formatMem(m.Mem(uint32(addr), n)))

	case "show-stack":
		printStack(m)

	case "cache_sim":
		dispatchCache(m, args)

	case "exit":
		return true

	default:
		fmt.Printf("unknown command: %s\n", name)
	}
	return false
}

func dispatchCache(m *machine.Machine, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: cache_sim enable <cfg> | disable | status | invalidate | dump <file> | stats")
		return
	}
	switch strings.ToLower(args[0]) {
	case "enable":
		if len(args) < 2 {
			fmt.Println("usage: cache_sim enable <cfg>")
			return
		}
		if err := m.EnableCache(args[1]); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("cache enabled")

	case "disable":
		m.DisableCache()
		fmt.Println("cache disabled")

	case "status":
		if m.Cache == nil {
			fmt.Println("cache not enabled")
			return
		}
		fmt.Println(m.Cache.Status())

	case "invalidate":
		if m.Cache == nil {
			fmt.Println("cache not enabled")
			return
		}
		m.Cache.Invalidate()
		fmt.Println("cache invalidated")

	case "dump":
		if m.Cache == nil {
			fmt.Println("cache not enabled")
			return
		}
		if len(args) < 2 {
			fmt.Println("usage: cache_sim dump <file>")
			return
		}
		f, err := os.Create(args[1])
		if err != nil {
			fmt.Println(err)
			return
		}
		defer f.Close()
		m.Cache.Dump(f)
		fmt.Printf("dumped to %s\n", args[1])

	case "stats":
		if m.Cache == nil {
			fmt.Println("cache not enabled")
			return
		}
		accesses, hits, misses := m.Cache.Stats()
		fmt.Printf("accesses=%d hits=%d misses=%d\n", accesses, hits, misses)

	default:
		fmt.Printf("unknown cache_sim subcommand: %s\n", args[0])
	}
}
