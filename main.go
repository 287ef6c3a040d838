package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kmon/config"
	"kmon/debuginfo"
	"kmon/logflags"
	"kmon/monitor"
	"kmon/qemu"
)

var (
	// host and port locate the QEMU gdb stub.
	host string
	port int
	// kernel is the ELF image whose symbols and DWARF describe the target.
	kernel string
	// configPath overrides ~/.kmon/config.yml.
	configPath string
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path where logs should go.
	logDest string
	noColor bool
)

const kmonLongDesc = `kmon is a kernel monitor for x86-64 kernels running under QEMU.

It attaches to QEMU's gdb stub (qemu -s -S), takes the halted CPU's
registers as its trap frame and offers a small command set: help,
kerninfo, backtrace, change_color and the inspection commands regs,
stack, x and disass. Frame pointer backtraces are annotated from the
DWARF line tables of the kernel image given with --kernel.`

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "kmon",
		Short:        "Interactive kernel monitor over the QEMU gdb stub.",
		Long:         kmonLongDesc,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute()
		},
	}
	root.Flags().StringVar(&host, "host", "localhost", "Host of the QEMU gdb stub.")
	root.Flags().IntVar(&port, "port", 1234, "Port of the QEMU gdb stub.")
	root.Flags().StringVarP(&kernel, "kernel", "k", "", "Kernel ELF image with symbols and debug info.")
	root.Flags().StringVar(&configPath, "config", "", "Configuration file (default ~/.kmon/config.yml).")
	root.Flags().BoolVar(&log, "log", false, "Enable debugging server logging.")
	root.Flags().StringVar(&logOutput, "log-output", "", `Comma separated list of components that should produce debug output:
	gdbwire	Log packets exchanged with the gdb stub
	monitor	Log dispatched commands
	debuginfo	Log symbol and DWARF loading
Defaults to "monitor" when logging is enabled with --log.`)
	root.Flags().StringVar(&logDest, "log-dest", "", "Writes logs to the specified file.")
	root.Flags().BoolVar(&noColor, "no-color", false, "Disable ANSI colors.")
	return root
}

func execute() error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}

	out := monitor.NewStdoutConsole(conf.Color && !noColor)
	cmds, err := monitor.NewRegistry(append(append(monitor.DefaultCommands(), monitor.TargetCommands()...), monitor.ExitCommand())...)
	if err != nil {
		return err
	}
	m := monitor.New(out, cmds)
	m.Config = conf

	if kernel != "" {
		table, err := debuginfo.Open(kernel)
		if err != nil {
			return fmt.Errorf("could not load %s: %w", kernel, err)
		}
		m.Info, m.Symbols = table, table
		if conf.DebugInfoCacheSize > 0 {
			cache, err := debuginfo.NewCache(table, conf.DebugInfoCacheSize)
			if err != nil {
				return err
			}
			m.Info = cache
		}
	}

	q, err := qemu.Connect(host, port)
	if err != nil {
		return fmt.Errorf("could not connect to %s:%d: %w", host, port, err)
	}
	defer q.Close()
	m.Target = q

	reason, err := q.Halt()
	if err != nil {
		return fmt.Errorf("could not halt the guest: %w", err)
	}
	if logflags.Monitor() {
		logflags.MonitorLogger().Debugf("halted: %s", reason)
	}
	tf, err := q.GetRegs()
	if err != nil {
		return fmt.Errorf("could not read registers: %w", err)
	}

	rl, err := monitor.NewReadline(conf, cmds)
	if err != nil {
		return err
	}
	defer rl.Close()

	if err := m.Run(rl, tf); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
