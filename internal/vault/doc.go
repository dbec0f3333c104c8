// Package vault is the application facade over snippet storage, the model
// lifecycle and search.
//
// Search degrades to substring matching while no model is loaded, whereas
// RegenerateEmbeddings fails with model.ErrNotLoaded. Snippet writes never
// fail because an embedding could not be computed; the failure is logged and
// the snippet is stored without a vector.
package vault
