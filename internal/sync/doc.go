// Package sync reconciles the local store of one account with the backup
// server.
//
// Overview
//
// A pass walks the four collections in order (workers, sites, time entries,
// payments). Records are matched across the two stores by business key,
// never by id, because each side allocates its own ids:
//
//	Worker     email
//	Site       name|address
//	TimeEntry  workerId|date|startTime
//	Payment    workerId|week
//
// For each collection:
//
//	local records ──┐                      ┌── remote records
//	                ▼                      ▼
//	          index by key            index by key
//	                │                      │
//	    Local→Remote: create when absent, update when local created_at is later
//	    Remote→Local: create when absent, update when remote created_at is later
//
// Equal timestamps leave both sides alone. Creates and updates copy
// created_at, so a second pass with no intervening edits does nothing.
//
// Usage
//
//	client := remote.New("localhost", 3002)
//	client.SetCredentials(email, password)
//
//	syncer := sync.New(store, client, nil)
//	result, err := syncer.Sync(ctx, email)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("pushed %d, pulled %d\n", result.LocalToRemote, result.RemoteToLocal)
//
// Error Handling
//
//   - An unreachable server fails the pass with ErrRemoteUnavailable
//   - A collection that cannot be listed on either side fails the pass
//   - A single create or update that fails is logged, counted in
//     Result.Failed and skipped
//
// A failed pass leaves the stores partially reconciled. The next pass
// re-evaluates every record from scratch.
//
// Concurrency
//
// One pass runs at a time per Syncer; a concurrent call returns
// ErrSyncInProgress. Status changes are delivered to subscribed observers
// synchronously, from the goroutine running the pass.
package sync
