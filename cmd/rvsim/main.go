// Command rvsim is the CLI front end for the RV64I simulator core
// (internal/machine). Each subcommand below loads a program fresh and
// exercises one verb from the orchestrator's command surface, for
// scripted/batch use; `rvsim repl` instead keeps one machine alive for
// an interactive session.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zaynotley/rv64sim/internal/machine"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rvsim",
		Short: "RV64I assembler, interpreter, and cache simulator",
	}

	rootCmd.AddCommand(
		loadCmd(),
		stepCmd(),
		runCmd(),
		breakCmd(),
		delCmd(),
		regsCmd(),
		memCmd(),
		showStackCmd(),
		cacheCmd(),
		replCmd(),
		exitCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadFresh loads path into a new machine and reports any load error the
// way every subcommand below needs to before doing its own work.
func loadFresh(path string) (*machine.Machine, error) {
	m := machine.New()
	if err := m.Load(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <file>",
		Short: "Parse and assemble a program, reporting success or the line that failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("loaded %s: %d instructions, state=%s\n", args[0], len(m.Instructions), m.State)
			return nil
		},
	}
}

func stepCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "step <file>",
		Short: "Load a program and execute N instructions (default 1)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < count; i++ {
				msg, ran := m.Step()
				if !ran {
					if msg != "" {
						fmt.Println(msg)
					}
					break
				}
				fmt.Printf("step %d: PC=0x%X\n", i+1, m.CPU.PC)
			}
			printRegs(m)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "number of instructions to execute")
	return cmd
}

func runCmd() *cobra.Command {
	var breaks []int
	var cachePath string
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Load a program, optionally set breakpoints/cache, and run to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			for _, line := range breaks {
				if err := m.SetBreak(line); err != nil {
					fmt.Fprintf(os.Stderr, "warning: %s\n", err)
				}
			}
			if cachePath != "" {
				if err := m.EnableCache(cachePath); err != nil {
					fmt.Fprintf(os.Stderr, "warning: cache disabled: %s\n", err)
				}
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			printRegs(m)
			printStack(m)
			return nil
		},
	}
	cmd.Flags().IntSliceVar(&breaks, "break", nil, "source line to break at (repeatable)")
	cmd.Flags().StringVar(&cachePath, "cache", "", "cache configuration file to enable before running")
	return cmd
}

func breakCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "break <file> <line>",
		Short: "Load a program, set a breakpoint at a source line, and run until it fires",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid line %q", args[1])
			}
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.SetBreak(line); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			printRegs(m)
			return nil
		},
	}
}

// delCmd groups "del break <file> <line>" under a parent verb since the
// command is written as two words.
func delCmd() *cobra.Command {
	del := &cobra.Command{
		Use:   "del",
		Short: "Clear a previously set breakpoint",
	}
	del.AddCommand(&cobra.Command{
		Use:   "break <file> <line>",
		Short: "Load a program, clear the breakpoint at a source line, and run to completion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid line %q", args[1])
			}
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.ClearBreak(line); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			printRegs(m)
			return nil
		},
	})
	return del
}

func regsCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "regs <file>",
		Short: "Load a program, optionally step it, and emit all 32 registers as hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < steps; i++ {
				if _, ran := m.Step(); !ran {
					break
				}
			}
			printRegs(m)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "instructions to execute before printing registers")
	return cmd
}

func memCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "mem <file> <addr> <n>",
		Short: "Load a program, optionally step it, and emit n bytes from addr",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid address %q", args[1])
			}
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid length %q", args[2])
			}
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < steps; i++ {
				if _, ran := m.Step(); !ran {
					break
				}
			}
			fmt.Println(formatMem(m.Mem(uint32(addr), n)))
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "instructions to execute before reading memory")
	return cmd
}

func showStackCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "show-stack <file>",
		Short: "Load a program, optionally step it, and emit the call stack bottom-to-top",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			for i := 0; i < steps; i++ {
				if _, ran := m.Step(); !ran {
					break
				}
			}
			printStack(m)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "instructions to execute before printing the call stack")
	return cmd
}

// cacheCmd groups the cache_sim verbs under one parent.
func cacheCmd() *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache_sim",
		Short: "Enable, inspect, or tear down the L1 cache simulation",
	}

	cache.AddCommand(&cobra.Command{
		Use:   "enable <file> <cfg>",
		Short: "Load a program, enable the cache from cfg, run, and print its geometry/policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.EnableCache(args[1]); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			fmt.Println(m.Cache.Status())
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "status <file> <cfg>",
		Short: "Load, enable, run, and print cache geometry/policy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.EnableCache(args[1]); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			fmt.Println(m.Cache.Status())
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "stats <file> <cfg>",
		Short: "Load, enable, run, and print accesses/hits/misses",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.EnableCache(args[1]); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			accesses, hits, misses := m.Cache.Stats()
			fmt.Printf("accesses=%d hits=%d misses=%d\n", accesses, hits, misses)
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "dump <file> <cfg> <out>",
		Short: "Load, enable, run, and dump per-line cache state to out",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.EnableCache(args[1]); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			f, err := os.Create(args[2])
			if err != nil {
				return err
			}
			defer f.Close()
			m.Cache.Dump(f)
			fmt.Printf("cache state dumped to %s\n", args[2])
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "invalidate <file> <cfg>",
		Short: "Load, enable, run, invalidate, and print the reset stats",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			if err := m.EnableCache(args[1]); err != nil {
				return err
			}
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			m.Cache.Invalidate()
			accesses, hits, misses := m.Cache.Stats()
			fmt.Printf("invalidated: accesses=%d hits=%d misses=%d\n", accesses, hits, misses)
			return nil
		},
	})

	cache.AddCommand(&cobra.Command{
		Use:   "disable <file>",
		Short: "Load and run a program with the cache disabled (the default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadFresh(args[0])
			if err != nil {
				return err
			}
			m.DisableCache()
			if msg := m.Run(); msg != "" {
				fmt.Println(msg)
			}
			printRegs(m)
			return nil
		},
	})

	return cache
}

func exitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exit",
		Short: "Terminate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
	}
}

func printRegs(m *machine.Machine) {
	fmt.Println(strings.Join(m.Regs(), "\n"))
}

func printStack(m *machine.Machine) {
	stack := m.ShowStack()
	if len(stack) == 0 {
		fmt.Println("(empty)")
		return
	}
	fmt.Println(strings.Join(stack, " -> "))
}

func formatMem(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
