// qs-dash is a terminal dashboard for a running quickshifter daemon.
// It polls /status and /config and renders live RPM, signal and cut
// state plus the active cut map.
//
// Usage:
//
//	qs-dash -addr http://192.168.4.1:8080
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
)

// statusPayload mirrors the daemon's /status response.
type statusPayload struct {
	RPM          uint16 `json:"rpm"`
	SignalActive bool   `json:"signalActive"`
	CutActive    bool   `json:"cutActive"`
	HWID         string `json:"hwid"`
	UptimeMs     uint64 `json:"uptime"`
}

// configPayload mirrors the daemon's /config response.
type configPayload struct {
	MinRPMThreshold uint16 `json:"minRpmThreshold"`
	DebounceTimeMs  uint16 `json:"debounceTimeMs"`
	ActiveMap       int    `json:"activeMap"`
	Maps            []struct {
		Name       string   `json:"name"`
		CutTimeMap []uint16 `json:"cutTimeMs"`
	} `json:"maps"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "Daemon base URL")
	interval := flag.Duration("interval", 500*time.Millisecond, "Poll interval")
	flag.Parse()

	client := &http.Client{Timeout: 2 * time.Second}

	area, err := pterm.DefaultArea.WithFullscreen().Start()
	if err != nil {
		pterm.Error.Printfln("start display: %v", err)
		os.Exit(1)
	}
	defer area.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		area.Update(render(client, *addr))
		select {
		case <-sigCh:
			return
		case <-ticker.C:
		}
	}
}

func render(client *http.Client, addr string) string {
	var b strings.Builder

	st, err := fetchStatus(client, addr)
	if err != nil {
		b.WriteString(pterm.Error.Sprintfln("%s unreachable: %v", addr, err))
		return b.String()
	}

	b.WriteString(pterm.DefaultBox.WithTitle("quickshifter " + st.HWID).WithTitleTopLeft().
		Sprint(statusLines(st)))
	b.WriteString("\n")

	cfg, err := fetchConfig(client, addr)
	if err != nil {
		b.WriteString(pterm.Warning.Sprintfln("config: %v", err))
		return b.String()
	}
	b.WriteString(configBlock(cfg))
	return b.String()
}

func statusLines(st statusPayload) string {
	signal := pterm.FgRed.Sprint("LOST")
	if st.SignalActive {
		signal = pterm.FgGreen.Sprint("OK")
	}
	cut := pterm.FgGray.Sprint("idle")
	if st.CutActive {
		cut = pterm.NewStyle(pterm.BgRed, pterm.FgWhite).Sprint(" CUT ")
	}
	return fmt.Sprintf("RPM     %5d\nSignal  %s\nCut     %s\nUptime  %s",
		st.RPM, signal, cut, (time.Duration(st.UptimeMs) * time.Millisecond).Round(time.Second))
}

func configBlock(cfg configPayload) string {
	var b strings.Builder
	b.WriteString(pterm.Sprintf("Threshold %d RPM | Debounce %d ms\n",
		cfg.MinRPMThreshold, cfg.DebounceTimeMs))

	data := pterm.TableData{{"Map", "Active"}}
	for i, m := range cfg.Maps {
		active := ""
		if i == cfg.ActiveMap {
			active = pterm.FgGreen.Sprint("●")
		}
		data = append(data, []string{m.Name, active})
	}
	table, _ := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	b.WriteString(table)
	b.WriteString("\n\n")

	if cfg.ActiveMap >= 0 && cfg.ActiveMap < len(cfg.Maps) {
		b.WriteString(cutMapString(cfg.Maps[cfg.ActiveMap].CutTimeMap))
	}
	return b.String()
}

// cutMapString renders the active map's buckets: everything below 6000
// clamps to the first band, 15000 and above to the last.
func cutMapString(cutMs []uint16) string {
	var b strings.Builder
	b.WriteString("  RPM band      Cut ms\n")
	for i, ms := range cutMs {
		var band string
		switch i {
		case 0:
			band = "    <6000"
		case len(cutMs) - 1:
			band = "   15000+"
		default:
			lo := 5000 + i*1000
			band = fmt.Sprintf("%5d-%d", lo, lo+999)
		}
		b.WriteString(fmt.Sprintf("  %-12s %s\n", band, barFor(ms)))
	}
	return pterm.DefaultBox.WithTitle("Active cut map").WithTitleTopLeft().Sprint(b.String())
}

// barFor draws a proportional bar for one cut duration.
func barFor(ms uint16) string {
	width := int(ms) / 5
	if width > 40 {
		width = 40
	}
	return fmt.Sprintf("%4d %s", ms, pterm.FgCyan.Sprint(strings.Repeat("█", width)))
}

func fetchStatus(client *http.Client, addr string) (statusPayload, error) {
	var st statusPayload
	return st, fetchJSON(client, addr+"/status", &st)
}

func fetchConfig(client *http.Client, addr string) (configPayload, error) {
	var cfg configPayload
	return cfg, fetchJSON(client, addr+"/config", &cfg)
}

func fetchJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
