// Package dispatch routes UI events to script handlers.
//
// A Dispatcher resolves the originating chart handle in the registry and,
// if the chart is live, invokes the named handler through the script
// session. Dispatch is synchronous: the caller blocks until the handler
// returns. Nothing escapes as a panic or an error return; every outcome is
// described by the returned Result:
//
//	res := d.Dispatch(ctx, handle, "paddingGrouperOnClick", payload)
//	switch {
//	case res.Dropped:
//	    // chart no longer registered
//	case res.Err != nil:
//	    // handler missing or faulted
//	default:
//	    // res.Value holds the handler's return value
//	}
//
// Events arriving as JSON lines are decoded with ParseEvent and results
// encoded with EncodeResult.
package dispatch
