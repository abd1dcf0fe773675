// Command riscv-run loads a guest ELF and call-data buffer, runs it against
// the emulator, and answers the host syscall boundary with a minimal
// in-memory reference implementation — enough to exercise the end-to-end
// scenarios from the command line without a blockchain node attached.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/riscv-cc/riscv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "riscv-run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	elfPath := flag.String("elf", "", "path to the guest ELF image")
	callDataPath := flag.String("calldata", "", "path to the call-data buffer (optional)")
	batchDir := flag.String("batch-dir", "", "directory of call-data files to run sequentially against the same image (optional)")
	configPath := flag.String("config", "", "path to a YAML machine descriptor (optional)")
	debug := flag.Bool("debug", false, "enable debug logging")
	budget := flag.Uint64("budget", 0, "maximum instructions to retire before giving up (0 = unbounded)")
	flag.Parse()

	if *elfPath == "" {
		flag.Usage()
		return fmt.Errorf("-elf is required")
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		return err
	}

	elfImage, err := os.ReadFile(*elfPath)
	if err != nil {
		return fmt.Errorf("read ELF: %w", err)
	}

	diskFile, diskSize, err := openDisk(cfg.DiskImage)
	if err != nil {
		return err
	}
	if diskFile != nil {
		defer diskFile.Close()
	}
	var disk riscv.ReadWriterAt
	if diskFile != nil {
		disk = diskFile
	}

	if *batchDir != "" {
		return runBatch(cfg, elfImage, *batchDir, disk, diskSize, log, *budget)
	}

	var callData []byte
	if *callDataPath != "" {
		callData, err = os.ReadFile(*callDataPath)
		if err != nil {
			return fmt.Errorf("read call data: %w", err)
		}
	}

	exitCode, err := runOnce(cfg, elfImage, callData, disk, diskSize, log, *budget)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", exitCode)
	return nil
}

func loadConfig(path string, log *slog.Logger) (riscv.Config, error) {
	if path == "" {
		return riscv.LoadConfig(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return riscv.Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := riscv.LoadConfig(data)
	if err != nil {
		log.Error("invalid machine descriptor", "path", path, "error", err)
		return riscv.Config{}, err
	}
	return cfg, nil
}

func openDisk(path string) (*os.File, uint64, error) {
	if path == "" {
		return nil, 0, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("open disk image: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat disk image: %w", err)
	}
	return f, uint64(info.Size()), nil
}

// runOnce loads elfImage and callData into a fresh emulator and drives it to
// completion, answering host syscalls with a fresh referenceHost.
func runOnce(cfg riscv.Config, elfImage, callData []byte, disk riscv.ReadWriterAt, diskSize uint64, log *slog.Logger, budget uint64) (uint64, error) {
	emu, err := riscv.NewEmulatorFromConfig(cfg, os.Stdin, os.Stdout, disk, diskSize)
	if err != nil {
		return 0, fmt.Errorf("create emulator: %w", err)
	}
	defer emu.Close()
	emu.SetLogger(log)

	if err := emu.LoadELF(bytesReaderAt(elfImage), callData); err != nil {
		log.Error("failed to load guest image", "error", err)
		return 0, err
	}

	host := newReferenceHost()
	for {
		result, err := emu.Run(budget)
		if err != nil {
			return 0, fmt.Errorf("run: %w", err)
		}
		switch result.Reason {
		case riscv.StopHalted:
			return result.ExitCode, nil
		case riscv.StopTimedOut:
			return 0, fmt.Errorf("exceeded instruction budget after %d instructions", result.Instret)
		case riscv.StopHostCall:
			req := emu.DecodeHostRequest()
			a0, a1 := host.handle(emu, req)
			emu.Resume(a0, a1)
		}
	}
}

// runBatch runs elfImage once per call-data file in dir, in sorted filename
// order, reporting progress once per completed run rather than per
// instruction.
func runBatch(cfg riscv.Config, elfImage []byte, dir string, disk riscv.ReadWriterAt, diskSize uint64, log *slog.Logger, budget uint64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read batch dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	bar := progressbar.Default(int64(len(names)), "running batch")
	for _, name := range names {
		callData, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read call data %s: %w", name, err)
		}
		exitCode, err := runOnce(cfg, elfImage, callData, disk, diskSize, log, budget)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("%s: %d\n", name, exitCode)
		bar.Add(1)
	}
	return nil
}
