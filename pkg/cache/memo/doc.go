/*
Package memo provides epoch-scoped memoization of expensive reads.

A Reader maps keys to values produced by a compute function. A stored value
carries the epoch it was computed in, and a Validity function decides
whether it may be served at the current epoch:

	entities := memo.New(memo.Config[uint64, Entity]{
		Name:    "entities",
		Epoch:   host.Epoch,
		Compute: readEntity,
	})

	e, err := entities.Get(ctx, addr)

With FrameValidity (the default) a value lives for exactly one epoch, so
every key is read from the source at most once per tick no matter how many
jobs ask for it. ManualValidity keeps values until Invalidate, and
LatencyValidity(n) keeps them for n epochs.

Concurrent Get calls for a key that needs computing collapse into one
compute; the others wait for it and return its result, a failure included.
Failures are not stored, so the first Get after a failed flight computes
again. A flight that failed because its caller's context ended is not
shared; the readers waiting on it compute for themselves.

Statistics follow one rule: every completed Get is counted exactly once,
either as a source read (this call ran compute, successfully or not) or as
a cache read (it was answered by a stored value or by another call's
flight). Reads that finish after their entry was removed count toward the
cache totals. Invalidations are counted separately as evictions.
*/
package memo
