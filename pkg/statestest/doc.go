// Package statestest provides a contract suite that every states.Store
// implementation is expected to pass.
//
//	func TestStore(t *testing.T) {
//		statestest.RunStoreContract(t, func(t *testing.T) states.Store {
//			return mystore.New(...)
//		})
//	}
package statestest
