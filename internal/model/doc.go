// Package model owns the local embedding model: it fetches the artifacts when
// they are missing, loads them into an embedding generator and hands that
// generator out through leases.
//
// # States
//
// A Manager moves Unloaded → Loading → Loaded. Unload, or a failed load,
// returns it to Unloaded. Acquire fails with ErrLoading while a load is in
// progress and with ErrNotLoaded when nothing is loaded.
//
// # Leases
//
//	lease, err := mgr.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//
//	vec, err := lease.Generator().Generate(ctx, text)
//
// Loading a new model swaps the active generator immediately. The previous
// generator is closed once the last lease on it is released, so calls in
// flight never see a closed session.
//
// # Artifacts
//
// The model directory holds model.onnx and tokenizer.json. When either is
// missing EnsureArtifacts downloads both in parallel into scratch files next
// to their destinations and renames them into place only after both
// transfers succeed. Concurrent calls share one transfer. Failed downloads
// are not retried.
package model
