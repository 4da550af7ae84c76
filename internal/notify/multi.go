package notify

import "errors"

// MultiSink fans one event out to several sinks. Delivery is attempted on
// every sink; the first error is returned after all attempts.
type MultiSink []Sink

func (m MultiSink) Deliver(e Event) error {
	var first error
	for _, s := range m {
		if err := s.Deliver(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RegistrySink pushes events to the driver's live websocket session. Drivers
// without a connected session are skipped, not errors.
type RegistrySink struct {
	Reg *WSRegistry
}

func (r RegistrySink) Deliver(e Event) error {
	if e.DriverID == "" {
		return nil
	}
	err := r.Reg.Push(e.DriverID, e)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}
