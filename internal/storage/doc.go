// Package storage provides SQLite-based persistence for snippets and their
// embedding vectors.
//
// # Database Schema
//
// Tables:
//   - snippets: title, content, language, optional description and tags
//   - embeddings: one vector per snippet with the model version that produced it
//   - schema_version: applied migrations
//
// Deleting a snippet removes its embedding through ON DELETE CASCADE.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.local/share/snipvault/snipvault.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	s := &types.Snippet{Title: "Binary search", Content: "func search(...)"}
//	if err := db.CreateSnippet(ctx, s); err != nil {
//	    return err
//	}
//
//	err = db.UpsertEmbedding(ctx, &storage.Embedding{
//	    SnippetID:    s.ID,
//	    Vector:       vec,
//	    ModelVersion: "all-MiniLM-L6-v2",
//	})
//
// # Transactions
//
// Use transactions to write a snippet and its vector atomically:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.UpdateSnippet(ctx, s); err != nil {
//	    return err
//	}
//	if err := tx.UpsertEmbedding(ctx, emb); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Vector Encoding
//
// Vectors are stored as raw little-endian float32 blobs, 4 bytes per
// component. The store never compares vectors; ranking happens in the
// searcher package.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags cgosqlite switches to github.com/mattn/go-sqlite3.
package storage
