// Command decode-permissions decodes a Discord permission integer into
// human-readable permission names and checks it against what the recording
// bot actually needs.
//
// Usage: decode-permissions <permission_integer>
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/onnwee/voice-archiver/discord"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: decode-permissions <permission_integer>")
		os.Exit(2)
	}
	value, err := strconv.ParseUint(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid permission integer %q: %v\n", os.Args[1], err)
		os.Exit(2)
	}

	a := discord.AnalyzePermissions(value)

	fmt.Printf("Permission integer: %d (0x%x)\n", a.Value, a.Value)
	fmt.Printf("Granted (%d):\n", len(a.Granted))
	for _, name := range a.Granted {
		fmt.Printf("  %s\n", name)
	}
	for _, name := range a.Unknown {
		fmt.Printf("  %s (unknown)\n", name)
	}

	if len(a.MissingRequired) > 0 {
		fmt.Printf("Missing required for recording:\n")
		for _, name := range a.MissingRequired {
			fmt.Printf("  %s\n", name)
		}
	} else {
		fmt.Println("All required recording permissions granted.")
	}

	if len(a.DangerousGranted) > 0 {
		fmt.Printf("Dangerous permissions granted (consider removing):\n")
		for _, name := range a.DangerousGranted {
			fmt.Printf("  %s\n", name)
		}
	}
	if a.IsAdmin {
		fmt.Println("Warning: ADMINISTRATOR grants everything; scope the bot down.")
	}

	if len(a.MissingRequired) > 0 {
		os.Exit(1)
	}
}
