package tradelog

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"tradingtot/internal/types"
)

const (
	EventPlaced    = "placed"
	EventCancelled = "cancelled"
	EventStatus    = "status"
)

// Entry is one line of the order journal.
type Entry struct {
	Time       string            `json:"time"`
	Event      string            `json:"event"`
	OrderID    types.OrderID     `json:"orderId"`
	Side       types.Side        `json:"side,omitempty"`
	Ticker     string            `json:"ticker,omitempty"`
	Instrument string            `json:"instrument,omitempty"`
	Value      string            `json:"value,omitempty"`
	Status     types.OrderStatus `json:"status,omitempty"`
	Extra      map[string]any    `json:"extra,omitempty"`
}

// Journal appends order events to daily JSONL files under dir.
type Journal struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Journal {
	return &Journal{dir: dir, now: time.Now}
}

func (j *Journal) dailyFilepath(t time.Time) string {
	return filepath.Join(j.dir, "orders-"+t.Format("2006-01-02")+".jsonl")
}

func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now().UTC()
	e.Time = now.Format(time.RFC3339)
	p := j.dailyFilepath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// Placed records a successful placement
func (j *Journal) Placed(ticker string, o types.PlacedOrder) error {
	return j.Append(Entry{
		Event:      EventPlaced,
		OrderID:    o.OrderID,
		Side:       o.Side,
		Ticker:     ticker,
		Instrument: o.Code,
		Value:      o.Value.String(),
		Status:     types.StatusSubmitted,
		Extra:      o.Costs,
	})
}

// Cancelled records a cancellation and the broker's acknowledgement
func (j *Journal) Cancelled(id types.OrderID, ack map[string]any) error {
	return j.Append(Entry{Event: EventCancelled, OrderID: id, Extra: ack})
}

// Status records a resolved terminal status
func (j *Journal) Status(r types.StatusReport) error {
	e := Entry{Event: EventStatus, OrderID: r.OrderID, Status: r.Status}
	if r.Price.Valid || r.Quantity.Valid {
		e.Extra = map[string]any{}
		if r.Price.Valid {
			e.Extra["price"] = r.Price.Decimal.String()
		}
		if r.Quantity.Valid {
			e.Extra["quantity"] = r.Quantity.Decimal.String()
		}
	}
	return j.Append(e)
}

// CompressOlder gzips journal files last modified before the retention window.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(p, ".jsonl") {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// an earlier run already compressed it
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := compressFile(p, gz); err != nil {
			return nil
		}
		_ = os.Remove(p)
		return nil
	})
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
