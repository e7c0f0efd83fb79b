// Package metastates records a timestamped history of named state transitions
// for domain entities and reacts to status changes with callbacks.
//
// The engine lives in pkg/states. Storage backends are in pkg/pgstore,
// pkg/sqlitestore and pkg/redisstore; pkg/notify streams transitions to NATS
// and cmd/metastates is a command line front end.
//
// Basic usage:
//
//	reg := states.NewRegistry()
//	reg.MustConfigureModel("user", func(m *states.ModelConfig) {
//		m.StateType("kyc", func(c *states.StateTypeConfig) {
//			c.Statuses = []string{"pending", "completed", "rejected"}
//			c.Limit = 1
//		})
//	})
//	reg.MustOn("kyc", sendWelcomeEmail, states.To("completed"))
//
//	svc := states.MustNewService(reg, states.NewMemoryStore())
//	rec, err := svc.AddState(ctx, states.Owner{Kind: "user", ID: userID}, "kyc")
//	if err != nil {
//		return err
//	}
//	_, err = svc.UpdateStatus(ctx, rec.ID, "completed")
package metastates
