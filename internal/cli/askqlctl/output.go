package askqlctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pterm/pterm"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

type askResponse struct {
	Status    string                                `json:"status"`
	SQL       string                                `json:"sql"`
	Data      []*orderedmap.OrderedMap[string, any] `json:"data"`
	Message   string                                `json:"message"`
	CacheHit  bool                                  `json:"cache_hit"`
	Truncated bool                                  `json:"truncated"`
}

type generateResponse struct {
	Status  string `json:"status"`
	SQL     string `json:"sql"`
	Message string `json:"message"`
}

type printer struct {
	w       io.Writer
	format  string
	noColor bool
}

func newPrinter(w io.Writer, format string, noColor bool) *printer {
	return &printer{w: w, format: format, noColor: noColor}
}

func (p *printer) style(s *pterm.Style, text string) string {
	if p.noColor {
		return text
	}
	return s.Sprint(text)
}

func (p *printer) ask(raw []byte, response askResponse) error {
	if p.format != OutputTable {
		return p.document(raw)
	}

	label := p.style(pterm.NewStyle(pterm.FgLightCyan), "SQL: ")
	_, _ = fmt.Fprintln(p.w, label+p.style(pterm.NewStyle(pterm.FgCyan, pterm.Bold), response.SQL))
	if response.CacheHit {
		_, _ = fmt.Fprintln(p.w, p.style(pterm.NewStyle(pterm.FgGreen), "cache hit"))
	}
	if response.Status != "success" {
		_, _ = fmt.Fprintln(p.w, p.style(pterm.NewStyle(pterm.FgRed), "error: "+response.Message))
		return nil
	}
	if len(response.Data) == 0 {
		_, _ = fmt.Fprintln(p.w, "(0 rows)")
		return nil
	}

	table := pterm.TableData{columnsOf(response.Data[0])}
	for _, row := range response.Data {
		line := make([]string, 0, row.Len())
		for pair := row.Oldest(); pair != nil; pair = pair.Next() {
			line = append(line, formatCell(pair.Value))
		}
		table = append(table, line)
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(table).Srender()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(p.w, rendered)

	footer := fmt.Sprintf("(%d rows)", len(response.Data))
	if response.Truncated {
		footer = fmt.Sprintf("(%d rows, truncated)", len(response.Data))
	}
	_, _ = fmt.Fprintln(p.w, p.style(pterm.NewStyle(pterm.FgGray), footer))
	return nil
}

func (p *printer) generate(raw []byte, response generateResponse) error {
	if p.format != OutputTable {
		return p.document(raw)
	}
	_, _ = fmt.Fprintln(p.w, response.SQL)
	return nil
}

// document renders an arbitrary JSON body. Table format renders top-level
// keys as a two-column table.
func (p *printer) document(raw []byte) error {
	switch p.format {
	case OutputJSON:
		var formatted bytes.Buffer
		if err := json.Indent(&formatted, bytes.TrimSpace(raw), "", "  "); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(p.w, formatted.String())
		return nil
	case OutputYAML:
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(p.w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	default:
		var value map[string]any
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		keys := make([]string, 0, len(value))
		for key := range value {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		table := pterm.TableData{{"KEY", "VALUE"}}
		for _, key := range keys {
			table = append(table, []string{key, formatCell(value[key])})
		}
		rendered, err := pterm.DefaultTable.WithHasHeader().WithData(table).Srender()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(p.w, rendered)
		return nil
	}
}

func columnsOf(row *orderedmap.OrderedMap[string, any]) []string {
	columns := make([]string, 0, row.Len())
	for pair := row.Oldest(); pair != nil; pair = pair.Next() {
		columns = append(columns, pair.Key)
	}
	return columns
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
