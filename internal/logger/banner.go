package logger

import (
	"fmt"
	"strings"
)

const banner = `
   ___            _
  / _ \ _ __ ___ | |_ ___  _ __ _ __ ___ _ __ | |_
 | | | | '__/ __|| __/ _ \| '__| '__/ _ \ '_ \| __|
 | |_| | | | (__ | || (_) | |  | | |  __/ | | | |_
  \___/|_|  \___| \__\___/|_|  |_|  \___|_| |_|\__|
`

type StartupInfo struct {
	Version     string
	Addr        string
	DataDir     string
	DownloadDir string
	ListenPort  int
	LogLevel    string
	AuthEnabled bool
}

func PrintBanner(info StartupInfo) {
	fmt.Print(banner)
	fmt.Printf("                                   v%s\n", info.Version)
	fmt.Println()

	maxWidth := 50
	auth := "off (loopback only)"
	if info.AuthEnabled {
		auth = "admin token"
	}
	fmt.Printf("  %s\n", strings.Repeat("─", maxWidth))
	fmt.Printf("  → Address:      http://%s\n", formatAddr(info.Addr))
	fmt.Printf("  → Auth:         %s\n", auth)
	fmt.Printf("  → Data Dir:     %s\n", info.DataDir)
	fmt.Printf("  → Download Dir: %s\n", info.DownloadDir)
	fmt.Printf("  → Peer Port:    %d\n", info.ListenPort)
	fmt.Printf("  → Log Level:    %s\n", info.LogLevel)
	fmt.Printf("  %s\n", strings.Repeat("─", maxWidth))
	fmt.Println()
}

func formatAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
