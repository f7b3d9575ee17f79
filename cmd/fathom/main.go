// Package main provides the Fathom runtime CLI.
package main

import (
	"fmt"
	"os"

	"github.com/fathom-ml/fathom/backend/webgpu"
	"github.com/fathom-ml/fathom/engine"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("Fathom Tensor Runtime %s\n", version)
			return
		case "devices":
			if err := listDevices(); err != nil {
				fmt.Fprintf(os.Stderr, "fathom: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("Fathom - Layout-Aware Tensor Runtime for Go")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  devices    List compute devices and queues")
}

func listDevices() error {
	cfg, err := engine.LoadConfig()
	if err != nil {
		return err
	}
	p, err := engine.NewPlatform(cfg)
	if err != nil {
		return err
	}
	defer p.Shutdown()

	if webgpu.IsAvailable() {
		if b, err := webgpu.New(); err == nil {
			defer b.Release()
			if _, err := b.Register(p); err != nil {
				fmt.Fprintf(os.Stderr, "fathom: webgpu registration failed: %v\n", err)
			}
		}
	}

	for _, d := range p.Devices() {
		fmt.Printf("device %d: %s (%s, %d MiB", d.Index(), d.Name(),
			d.MemoryKind(), d.Capacity()>>20)
		if d.Cores() > 0 {
			fmt.Printf(", %d cores", d.Cores())
		}
		if len(d.Features()) > 0 {
			fmt.Printf(", %v", d.Features())
		}
		fmt.Println(")")
		for _, q := range d.Queues() {
			fmt.Printf("  queue %s [%s]\n", q.Name(), q.Mode())
		}
	}
	return nil
}
