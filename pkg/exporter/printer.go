package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"boxpeer/pkg/core"
	"boxpeer/pkg/preview"
	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/types"

	"gopkg.in/yaml.v3"
)

// Format 输出格式
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (table|json|yaml)", s)
	}
}

// Printer 按格式打印记录、预览、划分结果和推广流水
type Printer struct {
	w      io.Writer
	format Format
}

func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// RecordRow 列表里的一行
type RecordRow struct {
	core.ContentRecord `yaml:",inline"`
	Availability       string `json:"availability,omitempty" yaml:"availability,omitempty"`
}

// Records states 可为 nil (未做可用性划分)
func (p *Printer) Records(records []core.ContentRecord, states map[types.CID]reconcile.Availability) error {
	rows := make([]RecordRow, len(records))
	for i, r := range records {
		rows[i] = RecordRow{ContentRecord: r}
		if st, ok := states[r.CID]; ok {
			rows[i].Availability = st.String()
		}
	}
	if p.format != FormatTable {
		return p.structured(rows)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "CID\tTITLE\tKIND\tPRICE\tOWNER\tAVAILABILITY\n")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortCID(r.CID), r.Title, r.FileKind, priceLabel(r.ConsumerFee), r.Owner, dash(r.Availability))
	}
	return tw.Flush()
}

// ElementRow 一个预览的摘要
type ElementRow struct {
	CID      types.CID `json:"cid" yaml:"cid"`
	Title    string    `json:"title" yaml:"title"`
	Strategy string    `json:"strategy" yaml:"strategy"`
	Access   string    `json:"access" yaml:"access"`
	Price    string    `json:"price" yaml:"price"`
	Handle   string    `json:"handle,omitempty" yaml:"handle,omitempty"`
}

func (p *Printer) Elements(elements []preview.Element) error {
	rows := make([]ElementRow, len(elements))
	for i, el := range elements {
		access := "unlocked"
		if el.Gated {
			access = "gated"
		}
		rows[i] = ElementRow{
			CID:      el.CID,
			Title:    el.Title,
			Strategy: el.Strategy.String(),
			Access:   access,
			Price:    el.PriceLabel(),
			Handle:   el.Handle.URL,
		}
	}
	if p.format != FormatTable {
		return p.structured(rows)
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "CID\tTITLE\tPREVIEW\tACCESS\tPRICE\n")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", shortCID(r.CID), r.Title, r.Strategy, r.Access, r.Price)
	}
	return tw.Flush()
}

func (p *Printer) Snapshot(s reconcile.Snapshot) error {
	if p.format != FormatTable {
		return p.structured(s)
	}
	fmt.Fprintf(p.w, "Pass:        %d\n", s.Pass)
	fmt.Fprintf(p.w, "Resident:    %d\n", len(s.Resident))
	fmt.Fprintf(p.w, "Remote-only: %d\n", len(s.RemoteOnly))
	if len(s.Failed) > 0 {
		fmt.Fprintf(p.w, "Probe failed: %d\n", len(s.Failed))
	}

	failed := make(map[types.CID]bool, len(s.Failed))
	for _, id := range s.Failed {
		failed[id] = true
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "\nCID\tSTATE\n")
	for _, id := range s.Resident {
		fmt.Fprintf(tw, "%s\t%s\n", id, reconcile.Resident)
	}
	for _, id := range s.RemoteOnly {
		state := reconcile.RemoteOnly.String()
		if failed[id] {
			state += " (probe failed)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", id, state)
	}
	return tw.Flush()
}

func (p *Printer) Promotions(ps []reconcile.Promotion) error {
	if p.format != FormatTable {
		return p.structured(ps)
	}
	tw := tabwriter.NewWriter(p.w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "CID\tSTATE\tREWARD\tATTEMPTS\tTX\tLAST ERROR\n")
	for _, pr := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			shortCID(pr.CID), pr.State, pr.Amount.APT(), pr.Attempts, dash(pr.TxRef), dash(pr.LastError))
	}
	return tw.Flush()
}

func (p *Printer) structured(v any) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q has no structured encoding", p.format)
	}
}

func priceLabel(fee types.Octas) string {
	if fee.IsZero() {
		return "Free"
	}
	return fee.APT()
}

// shortCID 表格里只显示前后各 6 位
func shortCID(id types.CID) string {
	s := id.String()
	if len(s) <= 16 {
		return s
	}
	return s[:6] + "…" + s[len(s)-6:]
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
