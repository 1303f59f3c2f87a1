package main

import (
	"fmt"
	"os"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "version":
			fmt.Printf("seapack %s\n", Version)
			fmt.Println("Single executable application packager for Node.js")
			return
		case "build":
			if err := runBuild(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "init":
			if err := runInit(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "help", "--help", "-h":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", os.Args[1])
			fmt.Fprintln(os.Stderr, "Run 'seapack help' for usage")
			os.Exit(1)
		}
	}

	printUsage()
}

func printUsage() {
	fmt.Println("seapack - package a Node.js application as single executables")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  seapack build [options] [platforms]  Build executables (default: macos windows linux)")
	fmt.Println("  seapack init [options]              Write a starter seapack.lua")
	fmt.Println("  seapack version                     Show version information")
	fmt.Println("  seapack help                        Show this help")
	fmt.Println()
	fmt.Println("Platform names can be separated by spaces or commas.")
	fmt.Println("Run 'seapack build --help' for build options.")
}
