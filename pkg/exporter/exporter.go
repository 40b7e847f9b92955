package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"boxpeer/pkg/access"
	"boxpeer/pkg/core"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/storage"
	"boxpeer/pkg/types"
)

// ErrGated 观看者没有权限导出该内容
var ErrGated = errors.New("content is gated")

// Exporter 把内容字节或元数据导出到 writer
// 导出字节前按账本重新判定访问权限，GATED 内容不会读取字节。
type Exporter struct {
	registry registry.Client
	content  storage.Fetcher
	viewer   types.Address
}

func NewExporter(reg registry.Client, content storage.Fetcher, viewer types.Address) *Exporter {
	return &Exporter{registry: reg, content: content, viewer: viewer.Normalize()}
}

// Description 一个 CID 的元数据和当前观看者的判定
type Description struct {
	Record      core.ContentRecord `json:"record" yaml:"record"`
	Access      string             `json:"access" yaml:"access"`
	Fee         types.Octas        `json:"fee" yaml:"fee"`
	Purchasers  int                `json:"purchasers" yaml:"purchasers"`
	Fingerprint string             `json:"fingerprint" yaml:"fingerprint"`
}

// Describe 读取记录并判定访问
func (e *Exporter) Describe(ctx context.Context, id types.CID) (Description, access.Decision, error) {
	record, err := registry.FindRecord(ctx, e.registry, id)
	if err != nil {
		return Description{}, access.Decision{}, err
	}
	purchasers := core.NewPurchaserSet()
	if !record.IsFree() {
		if purchasers, err = e.registry.GetPurchasers(ctx, id); err != nil {
			return Description{}, access.Decision{}, err
		}
	}
	d := access.Decide(record, e.viewer, purchasers)

	fp, err := record.Fingerprint()
	if err != nil {
		return Description{}, d, fmt.Errorf("fingerprint %s: %w", id, err)
	}
	desc := Description{
		Record:      record,
		Access:      d.Verdict.String(),
		Fee:         d.Fee,
		Purchasers:  purchasers.Len(),
		Fingerprint: fp,
	}
	return desc, d, nil
}

// ExportFile 把 CID 的字节写入 writer，返回写入的字节数
func (e *Exporter) ExportFile(ctx context.Context, id types.CID, w io.Writer) (int64, error) {
	_, d, err := e.Describe(ctx, id)
	if err != nil {
		return 0, err
	}
	if !d.Unlocked() {
		return 0, fmt.Errorf("%w: pay %s to export %s", ErrGated, d.Fee.APT(), id)
	}

	data, err := e.content.Fetch(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	n, err := io.Copy(w, bytes.NewReader(data))
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", id, err)
	}
	return n, nil
}

// ExportMetadata 按 Printer 的格式输出 Description
func (e *Exporter) ExportMetadata(ctx context.Context, id types.CID, p *Printer) error {
	desc, _, err := e.Describe(ctx, id)
	if err != nil {
		return err
	}
	if p.format != FormatTable {
		return p.structured(desc)
	}
	r := desc.Record
	fmt.Fprintf(p.w, "CID:         %s\n", r.CID)
	fmt.Fprintf(p.w, "Title:       %s\n", r.Title)
	fmt.Fprintf(p.w, "Kind:        %s\n", r.FileKind)
	fmt.Fprintf(p.w, "Owner:       %s %s\n", r.Owner, r.OwnerName)
	fmt.Fprintf(p.w, "Price:       %s\n", priceLabel(r.ConsumerFee))
	fmt.Fprintf(p.w, "Fee paid:    %s\n", r.FeePaid.APT())
	fmt.Fprintf(p.w, "Access:      %s\n", desc.Access)
	fmt.Fprintf(p.w, "Purchasers:  %d\n", desc.Purchasers)
	fmt.Fprintf(p.w, "Fingerprint: %s\n", desc.Fingerprint)
	if r.Description != "" {
		fmt.Fprintf(p.w, "\n%s\n", r.Description)
	}
	return nil
}
