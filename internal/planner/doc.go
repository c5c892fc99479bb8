// Package planner handles the collection phase of a merge.
//
// The planner walks every source tree, strips each source root from the
// walker's entries and folds the resulting relative paths into one ordered
// mapping of relative path to owning source. It never touches the
// destination: the engine only starts mutating once a complete, conflict-free
// MergePlan exists.
//
// Key responsibilities:
//   - Walk sources in the order given, honoring the depth bound
//   - Drop version-control metadata entries unless requested
//   - Detect relative paths claimed by two different sources
//   - Order entries lexicographically by relative path
package planner
