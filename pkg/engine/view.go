package engine

import (
	"time"

	"datapulse/pkg/runtime"
	"datapulse/pkg/runtime/constant"
)

// RefreshView reads the live window of kind starting at from and annotates
// rows whose tag carries an active alarm with the highest such priority.
func (m *Manager) RefreshView(kind constant.PointKind, from uint16) (*runtime.LiveView, error) {
	count := m.viewCount
	if last := int(from) + count - 1; last > constant.MaxAddress {
		count = constant.MaxAddress - int(from) + 1
	}
	if count > kind.Limit() {
		count = kind.Limit()
	}

	var values []runtime.Value
	err := m.supervisor.WithConnection(func(client runtime.ProtocolClient) error {
		var err error
		values, err = runtime.ReadPoints(client, kind, from, uint16(count))
		return err
	})
	m.viewMux.Lock()
	m.viewKind, m.viewFrom = kind, from
	m.viewMux.Unlock()
	if err != nil {
		return nil, err
	}

	alarmed := make(map[string]constant.Priority)
	for _, a := range m.evaluator.ActiveAlarms() {
		if a.Priority > alarmed[a.TagFullName] {
			alarmed[a.TagFullName] = a.Priority
		}
	}

	view := &runtime.LiveView{
		Kind:   kind,
		Start:  from,
		Rows:   make([]runtime.LiveRow, 0, len(values)),
		ReadAt: time.Now(),
	}
	for i, v := range values {
		address := from + uint16(i)
		row := runtime.LiveRow{Address: address, Value: v}
		if info, ok := m.catalog.Lookup(kind, address); ok {
			row.Tag = &info
			row.AlarmPriority = alarmed[info.FullName()]
		}
		view.Rows = append(view.Rows, row)
	}

	m.viewMux.Lock()
	m.view = view
	m.viewMux.Unlock()
	return view, nil
}

// View returns the last live view read, nil before the first.
func (m *Manager) View() *runtime.LiveView {
	m.viewMux.RLock()
	defer m.viewMux.RUnlock()
	if m.view == nil {
		return nil
	}
	v := *m.view
	v.Rows = append([]runtime.LiveRow{}, m.view.Rows...)
	return &v
}
