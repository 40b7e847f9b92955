package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"boxpeer/pkg/core"
	"boxpeer/pkg/preview"
	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type countingFetcher struct {
	calls int
}

func (f *countingFetcher) Fetch(_ context.Context, id types.CID) ([]byte, error) {
	f.calls++
	return []byte("payload of " + id.String()), nil
}

func setupLedger(t *testing.T) *registry.Memory {
	t.Helper()
	ctx := context.Background()
	m := registry.NewMemory()
	m.Fund("0xowner", 10_000_000_000)
	m.Fund("0xbuyer", 1_000_000_000)
	for _, r := range []core.ContentRecord{
		{CID: "bafkfree", Owner: "0xowner", FileKind: "txt", FeePaid: 100, Title: "readme"},
		{CID: "bafkpaid", Owner: "0xowner", FileKind: "mp3", FeePaid: 1_000_000_000, ConsumerFee: 250_000_000, Title: "song", Description: "a song"},
	} {
		_, err := m.Publish(ctx, r)
		require.NoError(t, err)
	}
	return m
}

func TestExportFile_FreeAndPurchased(t *testing.T) {
	ctx := context.Background()
	ledger := setupLedger(t)
	content := &countingFetcher{}

	var out bytes.Buffer
	n, err := NewExporter(ledger, content, "").ExportFile(ctx, "bafkfree", &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len("payload of bafkfree")), n)
	assert.Equal(t, "payload of bafkfree", out.String())

	_, err = ledger.PayForContent(ctx, "0xBUYER", "bafkpaid")
	require.NoError(t, err)
	out.Reset()
	_, err = NewExporter(ledger, content, "0xbuyer").ExportFile(ctx, "bafkpaid", &out)
	require.NoError(t, err)
	assert.Equal(t, "payload of bafkpaid", out.String())
}

func TestExportFile_GatedReadsNothing(t *testing.T) {
	content := &countingFetcher{}
	var out bytes.Buffer
	_, err := NewExporter(setupLedger(t), content, "0xstranger").ExportFile(context.Background(), "bafkpaid", &out)

	assert.ErrorIs(t, err, ErrGated)
	assert.Contains(t, err.Error(), "APT 2.5")
	assert.Zero(t, content.calls)
	assert.Zero(t, out.Len())
}

func TestExportFile_UnknownCID(t *testing.T) {
	_, err := NewExporter(setupLedger(t), &countingFetcher{}, "").ExportFile(context.Background(), "nope", &bytes.Buffer{})
	assert.ErrorIs(t, err, core.ErrRecordMissing)
}

func TestExportMetadata(t *testing.T) {
	ctx := context.Background()
	exp := NewExporter(setupLedger(t), &countingFetcher{}, "0xstranger")

	var table bytes.Buffer
	require.NoError(t, exp.ExportMetadata(ctx, "bafkpaid", NewPrinter(&table, FormatTable)))
	assert.Contains(t, table.String(), "Access:      GATED")
	assert.Contains(t, table.String(), "Price:       APT 2.5")
	assert.Contains(t, table.String(), "a song")

	var js bytes.Buffer
	require.NoError(t, exp.ExportMetadata(ctx, "bafkpaid", NewPrinter(&js, FormatJSON)))
	var desc Description
	require.NoError(t, json.Unmarshal(js.Bytes(), &desc))
	assert.Equal(t, "GATED", desc.Access)
	assert.Equal(t, types.Octas(250_000_000), desc.Fee)
	assert.Len(t, desc.Fingerprint, 64)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatTable, f)

	f, err = ParseFormat("yaml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestPrinter_Records(t *testing.T) {
	records := []core.ContentRecord{
		{CID: "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy", Title: "pic", FileKind: "png", Owner: "0xowner"},
		{CID: "Qm2", Title: "clip", FileKind: "mp4", ConsumerFee: 500_000_000, Owner: "0xowner"},
	}
	states := map[types.CID]reconcile.Availability{"Qm2": reconcile.Resident}

	var table bytes.Buffer
	require.NoError(t, NewPrinter(&table, FormatTable).Records(records, states))
	s := table.String()
	assert.Contains(t, s, "AVAILABILITY")
	assert.Contains(t, s, "bafkre…4s52zy")
	assert.Contains(t, s, "APT 5")
	assert.Contains(t, s, "Free")
	assert.Contains(t, s, "resident")

	var y bytes.Buffer
	require.NoError(t, NewPrinter(&y, FormatYAML).Records(records, states))
	var rows []map[string]any
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Qm2", rows[1]["cid"])
	assert.Equal(t, "resident", rows[1]["availability"])
	_, has := rows[0]["availability"]
	assert.False(t, has)
}

func TestPrinter_SnapshotAndPromotions(t *testing.T) {
	snap := reconcile.Snapshot{
		Resident:   []types.CID{"bafk1"},
		RemoteOnly: []types.CID{"bafk2", "bafk3"},
		Failed:     []types.CID{"bafk3"},
		Pass:       2,
		At:         time.Now(),
	}
	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out, FormatTable).Snapshot(snap))
	assert.Contains(t, out.String(), "Remote-only: 2")
	assert.Contains(t, out.String(), "remote-only (probe failed)")

	out.Reset()
	promos := []reconcile.Promotion{{CID: "bafk2", State: "pinned-unclaimed", Amount: 50_000_000, Attempts: 1, LastError: "payment unconfirmed"}}
	require.NoError(t, NewPrinter(&out, FormatTable).Promotions(promos))
	assert.Contains(t, out.String(), "pinned-unclaimed")
	assert.Contains(t, out.String(), "APT 0.5")
	assert.Contains(t, out.String(), "payment unconfirmed")

	out.Reset()
	require.NoError(t, NewPrinter(&out, FormatJSON).Promotions(promos))
	assert.Contains(t, out.String(), `"state": "pinned-unclaimed"`)
}

func TestPrinter_Elements(t *testing.T) {
	elements := []preview.Element{
		{CID: "Qm1", Title: "pic", Strategy: preview.StrategyImage, Handle: preview.BlobHandle{ID: "1", URL: "blob:boxpeer/1"}},
		{CID: "Qm2", Title: "clip", Strategy: preview.StrategyVideo, Gated: true, Price: 500_000_000},
	}
	var out bytes.Buffer
	require.NoError(t, NewPrinter(&out, FormatTable).Elements(elements))
	assert.Contains(t, out.String(), "gated")
	assert.Contains(t, out.String(), "unlocked")
	assert.Contains(t, out.String(), "APT 5")
}
