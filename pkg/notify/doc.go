// Package notify publishes state transitions to NATS.
//
// A Notifier turns a committed transition into a JSON Event and publishes it
// on <prefix>.<owner_kind>.<state_type>.<status>. Register its Action as a
// callback to stream every transition of a state type:
//
//	nc, err := notify.Connect(ctx, "nats://localhost:4222")
//	if err != nil {
//		return err
//	}
//	defer nc.Drain()
//
//	n := notify.New(nc, notify.WithSubjectPrefix("billing"), notify.WithLogger(log))
//	registry.MustOn("kyc", n.Action(), states.WithID("kyc_events"))
//
// Subscribers can then listen on "billing.user.kyc.>" or "billing.*.*.completed".
package notify
