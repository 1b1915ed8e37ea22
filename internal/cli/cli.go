package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/NamiraNet/handoff/internal/board"
	"github.com/enescakir/emoji"
)

var statusEmojis = map[board.Status]emoji.Emoji{
	board.StatusQueued:    emoji.HourglassNotDone,
	board.StatusEncrypted: emoji.Locked,
	board.StatusFailed:    emoji.CrossMark,
}

func StatusGlyph(s board.Status) string {
	if e, ok := statusEmojis[s]; ok {
		return e.String()
	}
	return "?"
}

// ReadLines calls fn for every line of r, trimmed. Blank lines are passed on
// as "" and lines starting with # are skipped. It stops at the first error.
func ReadLines(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

type OutputOptions struct {
	Format   string
	Filename string
}

type OutputManager struct {
	out io.Writer
}

func NewOutputManager(out io.Writer) *OutputManager {
	if out == nil {
		out = os.Stdout
	}
	return &OutputManager{out: out}
}

func (om *OutputManager) Output(items []board.Item, options OutputOptions) error {
	var output string
	var err error

	switch options.Format {
	case "json":
		output, err = om.JSON(items)
	case "csv":
		output, err = om.CSV(items)
	case "table", "":
		output = om.Table(items)
	default:
		return fmt.Errorf("unsupported output format: %s", options.Format)
	}

	if err != nil {
		return err
	}

	if options.Filename != "" {
		return os.WriteFile(options.Filename, []byte(output), 0644)
	}

	_, err = io.WriteString(om.out, output)
	return err
}

func (om *OutputManager) JSON(items []board.Item) (string, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	return string(data) + "\n", err
}

func (om *OutputManager) CSV(items []board.Item) (string, error) {
	lines := []string{"Status,Key,Elapsed(ms),Error,PlainText,CipherText"}

	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%s,%s,%s",
			board.StatusOf(item),
			item.Value.Key,
			elapsedMs(item),
			escapeCSV(item.Err),
			escapeCSV(item.Value.PlainText),
			item.Value.CipherText))
	}

	return strings.Join(lines, "\n") + "\n", nil
}

func (om *OutputManager) Table(items []board.Item) string {
	lines := []string{
		fmt.Sprintf("%-4s %-36s %-10s %-40s %-30s", "", "KEY", "ELAPSED", "MESSAGE", "CIPHER / ERROR"),
		strings.Repeat("-", 124),
	}
	for _, item := range items {
		lines = append(lines, Row(item))
	}
	return strings.Join(lines, "\n") + "\n"
}

// Row renders one board item the way the table does.
func Row(item board.Item) string {
	status := board.StatusOf(item)
	detail := item.Value.CipherText
	if status == board.StatusFailed {
		detail = item.Err
	}
	return fmt.Sprintf("%-4s %-36s %-10s %-40s %-30s",
		StatusGlyph(status),
		item.Value.Key,
		elapsedMs(item),
		truncateString(item.Value.PlainText, 40),
		truncateString(detail, 30))
}

type SummaryPrinter struct {
	out io.Writer
}

func NewSummaryPrinter(out io.Writer) *SummaryPrinter {
	if out == nil {
		out = os.Stdout
	}
	return &SummaryPrinter{out: out}
}

// PrintSummary prints totals and the average time a message spent between
// submit and result.
func (sp *SummaryPrinter) PrintSummary(items []board.Item) {
	total := len(items)
	var encrypted, failed, queued int
	var totalElapsed time.Duration

	for _, item := range items {
		switch board.StatusOf(item) {
		case board.StatusEncrypted:
			encrypted++
			totalElapsed += item.Elapsed
		case board.StatusFailed:
			failed++
		default:
			queued++
		}
	}

	fmt.Fprintln(sp.out, "\n"+strings.Repeat("=", 50))
	fmt.Fprintln(sp.out, "SUMMARY")
	fmt.Fprintln(sp.out, strings.Repeat("=", 50))
	fmt.Fprintf(sp.out, "Total messages: %d\n", total)
	if total == 0 {
		return
	}
	fmt.Fprintf(sp.out, "Encrypted: %d (%.1f%%)\n", encrypted, percent(encrypted, total))
	fmt.Fprintf(sp.out, "Failed: %d (%.1f%%)\n", failed, percent(failed, total))
	if queued > 0 {
		fmt.Fprintf(sp.out, "Still queued: %d\n", queued)
	}
	if encrypted > 0 {
		avg := totalElapsed / time.Duration(encrypted)
		fmt.Fprintf(sp.out, "Average elapsed: %.1f ms\n", float64(avg.Microseconds())/1000)
	}
}

func percent(n, total int) float64 {
	return float64(n) / float64(total) * 100
}

func elapsedMs(item board.Item) string {
	if !item.Processed() {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", float64(item.Elapsed.Microseconds())/1000)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		s = strings.ReplaceAll(s, "\"", "\"\"")
		return "\"" + s + "\""
	}
	return s
}
