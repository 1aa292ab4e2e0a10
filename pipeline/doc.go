// Package pipeline runs search and analysis tasks asynchronously.
//
// A submitted task runs on a bounded worker pool through a fixed stage
// sequence, writing stage, progress and message checkpoints into an
// in-memory task registry that polling clients read until the task
// reaches a terminal state. Cancellation is cooperative: it is checked
// at stage boundaries, never mid-call.
package pipeline
