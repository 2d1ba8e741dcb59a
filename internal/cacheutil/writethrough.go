// Package cacheutil holds small cache-coherency helpers shared by the
// services that write subscription records.
package cacheutil

// WriteThrough executes a write operation and invalidates the cached
// snapshot only on success, so a failed write never evicts a still-valid
// entry.
//
// Usage:
//
//	return cacheutil.WriteThrough(
//	    func() { s.invalidate(ctx, tenantID) },
//	    func() error { return s.store.Upsert(ctx, rec) },
//	)
func WriteThrough(invalidate func(), operation func() error) error {
	if err := operation(); err != nil {
		return err
	}
	invalidate()
	return nil
}
