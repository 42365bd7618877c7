package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"
)

const (
	journalKeyDeposit   = "deposit"
	journalKeyWithdraw  = "withdraw"
	journalKeyRebalance = "rebalance"
	journalKeyAssetAdd  = "asset_added"
	journalKeyAssetDrop = "asset_removed"
	journalKeyHarvest   = "harvest"

	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// Journal is the vault's append-only event log. Every deposit,
// withdrawal, rebalance and registry change is recorded so operators
// can replay the vault's history after a restart.
type Journal struct {
	l   *zap.Logger
	wal *gowal.Wal
}

// Record is one replayed journal entry: the event kind plus its
// JSON-encoded payload.
type Record struct {
	Kind    string
	Payload []byte
}

// OpenJournal creates or reopens the journal under dir.
func OpenJournal(l *zap.Logger, dir string) (*Journal, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if err := os.MkdirAll(dir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "ensure journal directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "log_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open journal wal")
	}
	return &Journal{l: l, wal: wal}, nil
}

// Append records one event. Journal failures are surfaced to the caller
// but never abort the vault operation that produced the event; the
// vault logs and continues.
func (j *Journal) Append(kind string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", kind)
	}
	idx := j.wal.CurrentIndex() + 1
	return j.wal.Write(idx, fmt.Sprintf("%s#%d", kind, idx), data)
}

// Replay returns every journaled record in append order.
func (j *Journal) Replay() []Record {
	var out []Record
	for msg := range j.wal.Iterator() {
		kind, _, _ := strings.Cut(msg.Key, "#")
		out = append(out, Record{Kind: kind, Payload: msg.Value})
	}
	return out
}

func (j *Journal) Close() error {
	return j.wal.Close()
}

// DefaultJournalDir places a vault's journal under base, keyed by a
// short vault label.
func DefaultJournalDir(base, label string) string {
	return filepath.Join(base, label)
}
