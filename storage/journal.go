package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"

	"ioctrader/market"
)

const prefixTick = "tick:"

// TickJournal persists public trade ticks in Pebble, one key per tick.
type TickJournal struct {
	db  *pebble.DB
	mu  sync.Mutex
	seq map[string]uint64
}

func OpenTickJournal(path string) (*TickJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open tick journal: %w", err)
	}
	return &TickJournal{db: db, seq: make(map[string]uint64)}, nil
}

func (j *TickJournal) Close() error { return j.db.Close() }

// Append stores a tick after the last one recorded for its instrument.
func (j *TickJournal) Append(tick market.TradeTick) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq, err := j.lastSeq(tick.Instrument)
	if err != nil {
		return err
	}
	data, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("failed to marshal tick: %w", err)
	}
	if err := j.db.Set(tickKey(tick.Instrument, seq+1), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save tick: %w", err)
	}
	j.seq[tick.Instrument] = seq + 1
	return nil
}

// Load returns every tick recorded for an instrument, oldest first.
func (j *TickJournal) Load(instrument string) ([]market.TradeTick, error) {
	prefix := tickPrefix(instrument)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ticks []market.TradeTick
	for iter.First(); iter.Valid(); iter.Next() {
		var tick market.TradeTick
		if err := json.Unmarshal(iter.Value(), &tick); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tick %s: %w", iter.Key(), err)
		}
		ticks = append(ticks, tick)
	}
	return ticks, iter.Error()
}

// lastSeq finds the highest sequence stored for an instrument, caching it.
func (j *TickJournal) lastSeq(instrument string) (uint64, error) {
	if seq, ok := j.seq[instrument]; ok {
		return seq, nil
	}
	prefix := tickPrefix(instrument)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var seq uint64
	if iter.Last() {
		key := iter.Key()
		parsed, err := strconv.ParseUint(string(key[len(prefix):]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt tick key %q: %w", key, err)
		}
		seq = parsed
	}
	j.seq[instrument] = seq
	return seq, nil
}

// tickKey returns the key for a tick.
// Format: "tick:{len(instrument)}:{instrument}:{seq}" with the sequence zero-padded to 20 digits
// so keys sort in append order.
func tickKey(instrument string, seq uint64) []byte {
	return append(tickPrefix(instrument), fmt.Sprintf("%020d", seq)...)
}

// tickPrefix carries the instrument length so that no instrument's prefix
// is a prefix of another's ("A" and "A:B" included).
func tickPrefix(instrument string) []byte {
	return []byte(fmt.Sprintf("%s%d:%s:", prefixTick, len(instrument), instrument))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
