// Package eventsink implements spec §4.7: the vault's mutation
// notification boundary. The vault calls a sink after a successful
// mutation; the sink's own failures are never allowed to fail the
// mutation itself.
//
// Grounded on the teacher's internal/pwmanager/pwmanager.go, which has no
// equivalent notification boundary at all — this is new surface the spec
// requires that the teacher's narrower scope never needed, generalized
// from hashicorp-nomad's pattern of a small consumed interface passed in
// through a subsystem's config rather than a concrete logger call.
package eventsink

// Method identifies which vault mutation produced an event.
type Method string

const (
	Added   Method = "added"
	Updated Method = "updated"
	Touched Method = "touched"
	Deleted Method = "deleted"
)

// Sink is implemented by embedders who want mutation notifications.
// Record is called after the mutation has already committed; fields is
// the comma-joined changed-field list for Updated events and empty
// otherwise.
type Sink interface {
	Record(method Method, id string, fields string)
}

// Noop discards every event. It is the Vault's default sink.
type Noop struct{}

func (Noop) Record(Method, string, string) {}

// Func adapts a plain function to the Sink interface.
type Func func(method Method, id string, fields string)

func (f Func) Record(method Method, id string, fields string) { f(method, id, fields) }
