package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pelletier/go-toml"
	"github.com/prometheus/common/expfmt"
	"github.com/rivo/tview"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpucheck"
	"git.uuxo.net/uuxo/ffmpeg-gate/internal/cpufeatures"
)

var log = logrus.New()

var configPaths = []string{
	"/etc/ffmpeg-gate/config.toml",
	"../config.toml",
	"./config.toml",
}

// Thresholds for color coding
const (
	HighUsage   = 80.0
	MediumUsage = 50.0
)

// monitorConfig is the part of the server config the monitor needs.
type monitorConfig struct {
	Path           string
	MetricsURL     string
	MetricsEnabled bool
	LogFile        string
}

// loadMonitorConfig reads the first config file found in paths.
func loadMonitorConfig(paths []string) (*monitorConfig, error) {
	var tree *toml.Tree
	var err error
	cfg := &monitorConfig{}
	for _, path := range paths {
		tree, err = toml.LoadFile(path)
		if err == nil {
			cfg.Path = path
			break
		}
	}
	if tree == nil {
		return nil, fmt.Errorf("no config file found in %v: %w", paths, err)
	}

	host := stringValue(tree, "server.bind_ip", "localhost")
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	listen := stringValue(tree, "server.listen_address", "8080")
	if !strings.Contains(listen, ":") {
		listen = ":" + listen
	}
	if strings.HasPrefix(listen, ":") {
		listen = host + listen
	}
	path := stringValue(tree, "server.metrics_path", "/metrics")

	cfg.MetricsURL = "http://" + listen + path
	cfg.LogFile = stringValue(tree, "logging.file", "/var/log/ffmpeg-gate.log")
	if v, ok := tree.Get("server.metricsenabled").(bool); ok {
		cfg.MetricsEnabled = v
	}
	return cfg, nil
}

func stringValue(tree *toml.Tree, key, def string) string {
	switch v := tree.Get(key).(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return def
	}
}

// ProcessInfo holds information about a process
type ProcessInfo struct {
	PID         int32
	Name        string
	CPUPercent  float64
	MemPercent  float32
	CommandLine string
	Uptime      string
	Status      string
}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:       10,
		IdleConnTimeout:    30 * time.Second,
		DisableCompression: true,
	},
}

func fetchMetrics(url string) (map[string]float64, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metrics: %w", err)
	}
	defer resp.Body.Close()
	return parseMetrics(io.LimitReader(resp.Body, 1024*1024))
}

var relevantPrefixes = []string{
	"ffmpeg_gate_",
	"memory_usage_bytes",
	"system_memory_used_percent",
	"cpu_usage_percent",
	"goroutines",
}

// parseMetrics extracts the gate's gauges and counters from a Prometheus
// text exposition.  Labelled series are keyed as name{k="v",...}.
func parseMetrics(r io.Reader) (map[string]float64, error) {
	parser := &expfmt.TextParser{}
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}

	metrics := make(map[string]float64)
	for name, mf := range families {
		relevant := false
		for _, prefix := range relevantPrefixes {
			if strings.HasPrefix(name, prefix) {
				relevant = true
				break
			}
		}
		if !relevant {
			continue
		}

		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetUntyped() != nil:
				value = m.GetUntyped().GetValue()
			case m.GetHistogram() != nil:
				metrics[name+"_count"] = float64(m.GetHistogram().GetSampleCount())
				continue
			default:
				continue
			}

			if len(m.GetLabel()) > 0 {
				labels := make([]string, 0, len(m.GetLabel()))
				for _, label := range m.GetLabel() {
					labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
				}
				metrics[fmt.Sprintf("%s{%s}", name, strings.Join(labels, ","))] = value
			} else {
				metrics[name] = value
			}
		}
	}
	return metrics, nil
}

func fetchSystemData() (float64, float64, int, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to fetch memory data: %w", err)
	}
	c, err := cpu.Percent(0, false)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to fetch CPU data: %w", err)
	}
	cores, err := cpu.Counts(true)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to fetch CPU cores: %w", err)
	}
	cpuUsage := 0.0
	if len(c) > 0 {
		cpuUsage = c[0]
	}
	return v.UsedPercent, cpuUsage, cores, nil
}

// fetchGateProcesses returns the gate server and any ffmpeg it runs.
func fetchGateProcesses() ([]ProcessInfo, error) {
	processes, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch processes: %w", err)
	}

	var list []ProcessInfo
	for _, p := range processes {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		name, err := p.NameWithContext(ctx)
		if err != nil || (name != "ffmpeg-gate" && name != "server" && name != "ffmpeg") {
			cancel()
			continue
		}
		cpuPercent, _ := p.CPUPercentWithContext(ctx)
		memPercent, _ := p.MemoryPercentWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		if len(cmdline) > 100 {
			cmdline = cmdline[:100] + "..."
		}
		status := "Running"
		if running, err := p.IsRunningWithContext(ctx); err != nil || !running {
			status = "Stopped"
		}
		uptime := ""
		if created, err := p.CreateTimeWithContext(ctx); err == nil {
			uptime = time.Since(time.UnixMilli(created)).Truncate(time.Second).String()
		}
		cancel()

		list = append(list, ProcessInfo{
			PID:         p.Pid,
			Name:        name,
			CPUPercent:  cpuPercent,
			MemPercent:  memPercent,
			CommandLine: cmdline,
			Uptime:      uptime,
			Status:      status,
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PID < list[j].PID })
	return list, nil
}

type systemData struct {
	memUsage float64
	cpuUsage float64
	cores    int
}

type cachedData struct {
	mu         sync.RWMutex
	system     systemData
	metrics    map[string]float64
	processes  []ProcessInfo
	lastUpdate time.Time
}

var cache = &cachedData{}

func refresh(cfg *monitorConfig) {
	memUsage, cpuUsage, cores, err := fetchSystemData()
	if err != nil {
		log.Warnf("Error fetching system data: %v", err)
	}

	var metrics map[string]float64
	if cfg.MetricsEnabled {
		if metrics, err = fetchMetrics(cfg.MetricsURL); err != nil {
			log.Debugf("Error fetching metrics: %v", err)
			metrics = map[string]float64{}
		}
	}

	processes, err := fetchGateProcesses()
	if err != nil {
		log.Debugf("Error fetching processes: %v", err)
	}

	cache.mu.Lock()
	cache.system = systemData{memUsage, cpuUsage, cores}
	cache.metrics = metrics
	cache.processes = processes
	cache.lastUpdate = time.Now()
	cache.mu.Unlock()
}

func updateUI(ctx context.Context, app *tview.Application, pages *tview.Pages, sysPage, gatePage tview.Primitive, cfg *monitorConfig) {
	dataTicker := time.NewTicker(5 * time.Second)
	uiTicker := time.NewTicker(2 * time.Second)
	defer dataTicker.Stop()
	defer uiTicker.Stop()

	go refresh(cfg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-dataTicker.C:
			go refresh(cfg)
		case <-uiTicker.C:
			app.QueueUpdateDraw(func() {
				updateUIComponents(pages, sysPage, gatePage)
			})
		}
	}
}

func updateUIComponents(pages *tview.Pages, sysPage, gatePage tview.Primitive) {
	current, _ := pages.GetFrontPage()

	cache.mu.RLock()
	defer cache.mu.RUnlock()

	switch current {
	case "system":
		flex := sysPage.(*tview.Flex)
		updateSystemTable(flex.GetItem(0).(*tview.Table), cache.system)
		updateMetricsTable(flex.GetItem(1).(*tview.Table), cache.metrics, "")
	case "gate":
		flex := gatePage.(*tview.Flex)
		updateProcessTable(flex.GetItem(0).(*tview.Table), cache.processes)
		updateMetricsTable(flex.GetItem(1).(*tview.Table), cache.metrics, "ffmpeg_gate_")
	}
}

func usageCell(v float64) *tview.TableCell {
	cell := tview.NewTableCell(fmt.Sprintf("%.2f%%", v))
	switch {
	case v > HighUsage:
		cell.SetTextColor(tcell.ColorRed)
	case v > MediumUsage:
		cell.SetTextColor(tcell.ColorYellow)
	default:
		cell.SetTextColor(tcell.ColorGreen)
	}
	return cell
}

func header(table *tview.Table, titles ...string) {
	table.Clear()
	for i, title := range titles {
		table.SetCell(0, i, tview.NewTableCell(title).SetAttributes(tcell.AttrBold))
	}
}

func updateSystemTable(table *tview.Table, s systemData) {
	header(table, "Metric", "Value")
	table.SetCell(1, 0, tview.NewTableCell("CPU Usage"))
	table.SetCell(1, 1, usageCell(s.cpuUsage))
	table.SetCell(2, 0, tview.NewTableCell("Memory Usage"))
	table.SetCell(2, 1, usageCell(s.memUsage))
	table.SetCell(3, 0, tview.NewTableCell("CPU Cores"))
	table.SetCell(3, 1, tview.NewTableCell(fmt.Sprintf("%d", s.cores)))
}

// updateMetricsTable lists metrics whose name starts with prefix, sorted.
func updateMetricsTable(table *tview.Table, metrics map[string]float64, prefix string) {
	header(table, "Metric", "Value")
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for i, k := range keys {
		table.SetCell(i+1, 0, tview.NewTableCell(k))
		table.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprintf("%.2f", metrics[k])))
	}
}

func updateProcessTable(table *tview.Table, processes []ProcessInfo) {
	header(table, "PID", "Name", "CPU%", "Mem%", "Uptime", "Status", "Command")
	for i, p := range processes {
		table.SetCell(i+1, 0, tview.NewTableCell(fmt.Sprintf("%d", p.PID)))
		table.SetCell(i+1, 1, tview.NewTableCell(p.Name))
		table.SetCell(i+1, 2, tview.NewTableCell(fmt.Sprintf("%.2f", p.CPUPercent)))
		table.SetCell(i+1, 3, tview.NewTableCell(fmt.Sprintf("%.2f", p.MemPercent)))
		table.SetCell(i+1, 4, tview.NewTableCell(p.Uptime))
		table.SetCell(i+1, 5, tview.NewTableCell(p.Status))
		table.SetCell(i+1, 6, tview.NewTableCell(p.CommandLine))
	}
}

// fillCPUTable shows the local CPU check.
func fillCPUTable(table *tview.Table, rep *cpucheck.Report, summary string) {
	header(table, "Property", "Value")
	verdict := tview.NewTableCell("unsupported").SetTextColor(tcell.ColorRed)
	if rep.Supported {
		verdict = tview.NewTableCell("supported").SetTextColor(tcell.ColorGreen)
	}
	rows := [][2]string{
		{"Family", rep.Family},
		{"Arch", rep.Arch},
		{"ABI", rep.ABI},
		{"Assets", rep.AssetsDir},
		{"Vendor", rep.Vendor},
		{"CPU", rep.BrandName},
		{"Features", strings.Join(rep.Features, " ")},
		{"Summary", summary},
	}
	table.SetCell(1, 0, tview.NewTableCell("Verdict"))
	table.SetCell(1, 1, verdict)
	for i, row := range rows {
		table.SetCell(i+2, 0, tview.NewTableCell(row[0]))
		table.SetCell(i+2, 1, tview.NewTableCell(row[1]))
	}
}

func createSystemPage() tview.Primitive {
	sysTable := tview.NewTable().SetBorders(false)
	sysTable.SetTitle(" [::b]System Data ").SetBorder(true)
	metricsTable := tview.NewTable().SetBorders(false)
	metricsTable.SetTitle(" [::b]Prometheus Metrics ").SetBorder(true)

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(sysTable, 6, 0, false).
		AddItem(metricsTable, 0, 1, false)
}

func createGatePage() tview.Primitive {
	processTable := tview.NewTable().SetBorders(false)
	processTable.SetTitle(" [::b]ffmpeg-gate Processes ").SetBorder(true)
	jobsTable := tview.NewTable().SetBorders(false)
	jobsTable.SetTitle(" [::b]Jobs and Checks ").SetBorder(true)

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(processTable, 0, 1, false).
		AddItem(jobsTable, 0, 2, false)
}

func createCPUPage() tview.Primitive {
	table := tview.NewTable().SetBorders(false)
	table.SetTitle(" [::b]CPU Capability ").SetBorder(true)
	features := cpufeatures.Detect()
	fillCPUTable(table, cpucheck.NewReport(features, ""), features.Summary())
	return table
}

// colorizeLogLine adds tview color tags by logrus level.
func colorizeLogLine(line string) string {
	switch {
	case strings.Contains(line, "level=error"), strings.Contains(line, "level=fatal"):
		return "[red]" + line + "[white]"
	case strings.Contains(line, "level=warn"):
		return "[yellow]" + line + "[white]"
	case strings.Contains(line, "level=info"):
		return "[green]" + line + "[white]"
	default:
		return line
	}
}

func createLogsPage(ctx context.Context, app *tview.Application, logFilePath string) tview.Primitive {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	view.SetTitle(" [::b]Logs ").SetBorder(true)

	const numLines = 50
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				content, err := readLastNLines(logFilePath, numLines)
				if err != nil {
					app.QueueUpdateDraw(func() {
						view.SetText(fmt.Sprintf("[red]Error reading log file: %v[white]", err))
					})
					continue
				}
				lines := strings.Split(content, "\n")
				for i, line := range lines {
					lines[i] = colorizeLogLine(line)
				}
				text := strings.Join(lines, "\n")
				app.QueueUpdateDraw(func() {
					view.SetText(text)
				})
			}
		}
	}()
	return view
}

// readLastNLines returns the last n lines of a file, reading backwards in
// blocks.
func readLastNLines(filePath string, n int) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	const blockSize = 4096
	var content []byte
	offset := size
	for offset > 0 && strings.Count(string(content), "\n") <= n {
		read := int64(blockSize)
		if offset < read {
			read = offset
		}
		offset -= read
		buf := make([]byte, read)
		if _, err := file.ReadAt(buf, offset); err != nil && err != io.EOF {
			return "", err
		}
		content = append(buf, content...)
	}

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

func main() {
	cfg, err := loadMonitorConfig(configPaths)
	if err != nil {
		log.Fatalf("Error loading config file: %v", err)
	}
	log.Infof("Using config file: %s, metrics at %s", cfg.Path, cfg.MetricsURL)
	if f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0); err == nil {
		// keep logrus output off the terminal tview owns
		log.SetOutput(f)
		defer f.Close()
	}

	app := tview.NewApplication()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pages := tview.NewPages()
	sysPage := createSystemPage()
	pages.AddPage("system", sysPage, true, true)
	gatePage := createGatePage()
	pages.AddPage("gate", gatePage, true, false)
	pages.AddPage("cpu", createCPUPage(), true, false)
	pages.AddPage("logs", createLogsPage(ctx, app, cfg.LogFile), true, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q', 'Q':
				cancel()
				app.Stop()
				return nil
			case 's', 'S':
				pages.SwitchToPage("system")
			case 'g', 'G':
				pages.SwitchToPage("gate")
			case 'c', 'C':
				pages.SwitchToPage("cpu")
			case 'l', 'L':
				pages.SwitchToPage("logs")
			}
		}
		return event
	})

	go updateUI(ctx, app, pages, sysPage, gatePage, cfg)

	if err := app.SetRoot(pages, true).EnableMouse(true).Run(); err != nil {
		log.Fatalf("Error running application: %v", err)
	}
}
