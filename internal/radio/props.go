package radio

import (
	"example.com/sdrmodel/internal/common"
	"example.com/sdrmodel/internal/reassembly"
	"example.com/sdrmodel/internal/status"
	"example.com/sdrmodel/internal/store"
)

func setFloat(s *store.Store, p status.Property, field *float64) error {
	v, err := status.ParseFloat(p.Value)
	if err != nil {
		return err
	}
	store.Set(s, p.Key, field, v)
	return nil
}

func setInt(s *store.Store, p status.Property, field *int) error {
	v, err := status.ParseInt(p.Value)
	if err != nil {
		return err
	}
	store.Set(s, p.Key, field, v)
	return nil
}

func setHex(s *store.Store, p status.Property, field *uint32) error {
	v, err := status.ParseHex(p.Value)
	if err != nil {
		return err
	}
	store.Set(s, p.Key, field, v)
	return nil
}

func setBool(s *store.Store, p status.Property, field *bool) error {
	v, err := status.ParseBool(p.Value)
	if err != nil {
		return err
	}
	store.Set(s, p.Key, field, v)
	return nil
}

func setText(s *store.Store, p status.Property, field *string) {
	store.Set(s, p.Key, field, status.Text(p.Value))
}

// countResult mirrors one Accept call into the shared counters. gaps is the
// assembler's gap count from before the call.
func countResult(m *common.Metrics, res reassembly.Result, gaps uint64, st reassembly.Stats) {
	if st.Gaps > gaps {
		m.Add(common.Gaps, int64(st.Gaps-gaps))
	}
	switch res {
	case reassembly.ResultComplete:
		m.Inc(common.Frames)
	case reassembly.ResultStale:
		m.Inc(common.Stale)
	case reassembly.ResultUnsynced:
		m.Inc(common.Unsynced)
	case reassembly.ResultMalformed:
		m.Inc(common.Malformed)
	}
}
