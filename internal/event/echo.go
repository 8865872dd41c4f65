package event

import (
	"context"
	"fmt"
)

// Echo copies every task parameter, resolved through indirection, into the
// event scope and logs how many were copied. Duplicate task keys are copied
// once, using the first entry.
var Echo TaskFunc = func(_ context.Context, p Params) error {
	e, ok := p.(*Event)
	if !ok {
		return fmt.Errorf("event: echo requires an *Event, got %T", p)
	}
	s := e.Scopes()
	copied := 0
	for i, tp := range s.Task.Params() {
		if s.Task.IndexOf(tp.Key) != i {
			continue
		}
		v, err := s.Resolve(tp.Key)
		if err != nil {
			return err
		}
		s.Event.Upsert(tp.Key, v)
		copied++
	}
	e.Logf("echoed %d task parameters", copied)
	return nil
}
