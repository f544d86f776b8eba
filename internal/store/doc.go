// Package store implements the local work item store.
//
// Every item lives in its own file under the items directory
// (.workq/items/{id}.md): YAML front matter holding the structured fields,
// followed by the free-form description as the document body.
//
//	---
//	id: local-3f2a9c1e
//	title: Wire up login
//	type: task
//	status: todo
//	priority: high
//	parent: ""
//	depends_on: []
//	...
//	---
//	Description text.
//
// The store keeps the parent/child forest and the dependency DAG well formed.
// Create and Update evaluate every relationship rule against the proposed
// graph before anything is written, so a rejected mutation leaves the
// directory untouched. Delete repairs the graph by clearing parent links and
// dropping dependency edges that point at the removed item.
//
// The store is sized for a few thousand items: every operation loads the
// full set of files, and relationship queries are linear scans.
package store
