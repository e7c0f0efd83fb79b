// Package states records a timestamped history of named state transitions for
// arbitrary domain entities ("owners") and runs callbacks when a state's
// status changes.
//
// # Configuration
//
// A Registry holds, per owner kind, the state types that kind may carry. Each
// state type has an ordered set of allowed statuses, an optional per-owner
// cardinality limit and an optional JSON Schema for its metadata:
//
//	reg := states.NewRegistry(states.WithOwnerKinds("user", "company"))
//	reg.MustConfigureModel("user", func(m *states.ModelConfig) {
//		m.StateType("kyc", func(c *states.StateTypeConfig) {
//			c.Statuses = []string{"pending", "completed", "rejected"}
//			c.Limit = 2
//		})
//		m.StateType("onboarding", func(c *states.StateTypeConfig) {
//			c.Statuses = []string{"pending", "completed"}
//			c.SetSchema(`{"type":"object","required":["step"]}`)
//		})
//	})
//
// ConfigureModel replaces the whole configuration of a kind in one step and
// leaves the previous configuration untouched when the new one is invalid.
//
// # Callbacks
//
// Registry.On binds an Action to a state type. Conditions narrow the match:
// To and From compare the new and the previous status, Where compares any
// record attribute (see Record.Attribute). Times caps the number of successful
// executions, after which the callback removes itself from the registry.
//
//	reg.MustOn("kyc", markVerified, states.To("completed"), states.WithID("kyc_done"))
//	reg.Off("kyc_done")
//
// # Writes
//
// Service.AddState and Service.UpdateStatus run the validation pipeline
// (status_is_configured, state_type_is_configured, state_limit_not_exceeded,
// metadata_conforms_to_schema and, with an OwnerResolver, owner_exists). Every
// failing rule is reported in one ValidationErrors value and nothing is
// written. After a committed status change the Dispatcher runs the matching
// callbacks in registration order. Action failures do not roll back the write;
// they are returned together as a *DispatchError.
//
// # Limits under concurrency
//
// The pipeline counts existing records to report limit violations together
// with other failures, but the count alone would race with concurrent inserts.
// Every Store therefore re-checks the limit atomically inside Create, and a
// lost race is reported as the same state_limit_not_exceeded failure.
//
// # Storage
//
// Store is the persistence boundary. MemoryStore ships with this package;
// Postgres, SQLite and Redis implementations live in pgstore, sqlitestore
// and redisstore, and statestest holds the shared contract suite.
package states
