// Command cpmrun boots CP/M .COM images and disk images against the
// 8080/Z80 emulator core, either headless (diagnostic harness) or
// interactively (raw-mode terminal bridged to the ADM-3A console).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cpm "github.com/fjzeit/heh8080"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cpuName string

	root := &cobra.Command{
		Use:   "cpmrun",
		Short: "Run CP/M software against the 8080/Z80 emulator core",
	}
	root.PersistentFlags().StringVar(&cpuName, "cpu", "8080", "CPU core: 8080 or z80")

	root.AddCommand(diagCmd(&cpuName))
	root.AddCommand(bootCmd(&cpuName))
	return root
}

func parseCpuType(name string) (cpm.CpuType, error) {
	switch name {
	case "8080", "":
		return cpm.CPUType8080, nil
	case "z80", "Z80":
		return cpm.CPUTypeZ80, nil
	default:
		return 0, fmt.Errorf("unknown --cpu %q (want 8080 or z80)", name)
	}
}

func diagCmd(cpuName *string) *cobra.Command {
	var maxInstructions int

	cmd := &cobra.Command{
		Use:   "diag <image.com>",
		Short: "Run a CP/M diagnostic .COM image (TST8080, CPUTEST, ZEXDOC, ...) under the BDOS trap harness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpuType, err := parseCpuType(*cpuName)
			if err != nil {
				return err
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}

			h := cpm.NewCpmHarness(cpuType)
			h.Load(image)
			runErr := h.Run(maxInstructions)
			fmt.Print(h.Output())
			if runErr != nil {
				return runErr
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxInstructions, "max-instructions", 200_000_000, "instruction budget before the harness gives up")
	return cmd
}

func bootCmd(cpuName *string) *cobra.Command {
	var diskPath string
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot a CP/M disk image interactively through the ADM-3A console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cpuType, err := parseCpuType(*cpuName)
			if err != nil {
				return err
			}
			if diskPath == "" {
				return fmt.Errorf("--disk is required")
			}

			emu := cpm.NewEmulator(cpuType)
			term := cpm.NewTerminal()

			console := cpm.NewConsoleDevice(term)
			emu.IoBus().Register(console, 0, 1)

			provider := cpm.NewFileDiskProvider(".")
			if err := provider.Mount(0, diskPath, readOnly); err != nil {
				return err
			}
			fdc := cpm.NewFDCDevice(provider, emu.Memory())
			emu.IoBus().Register(fdc, 10, 17)

			boot := make([]byte, 128)
			if err := provider.ReadSector(0, 0, 1, boot); err != nil {
				return err
			}
			emu.Load(0x0000, boot)

			host := newTerminalHost(term)
			defer host.Close()
			term.OnChange(host.Render)
			go host.PumpInput()

			emu.Start()
			defer emu.StopAsync()

			<-host.done
			return nil
		},
	}
	cmd.Flags().StringVar(&diskPath, "disk", "", "path to a CP/M disk image to mount as drive A:")
	cmd.Flags().BoolVar(&readOnly, "readonly", false, "mount the disk image read-only")
	return cmd
}
