// Package staging provides the directory that embedded programs see as
// their filesystem.
//
// Input bytes are staged into a [Store] before a run and unlinked after it.
// The store's root is mounted at "/" in the guest, so a file created at
// "3f2c.../game.map" is opened by the program under that same relative path.
//
//	store, _ := staging.NewTemp()
//	defer store.Close()
//
//	store.Create("job/game.map", data, true, true)
//	defer store.Unlink("job/game.map")
//
// Paths are always relative to the root; anything that would resolve
// outside it is rejected with [ErrEscape].
package staging
