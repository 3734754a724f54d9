package eventsink

import "testing"

func TestNoopDiscardsEvents(t *testing.T) {
	// Record must not panic and has no observable effect; this simply
	// exercises the call.
	var s Sink = Noop{}
	s.Record(Added, "item-1", "")
}

func TestFuncAdaptsPlainFunction(t *testing.T) {
	var got struct {
		method Method
		id     string
		fields string
	}
	s := Func(func(method Method, id string, fields string) {
		got.method = method
		got.id = id
		got.fields = fields
	})

	s.Record(Updated, "item-1", "title,entry.password")

	if got.method != Updated || got.id != "item-1" || got.fields != "title,entry.password" {
		t.Errorf("Record() captured = %+v, want method=%s id=item-1 fields=title,entry.password", got, Updated)
	}
}
