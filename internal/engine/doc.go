// Package engine runs bounded, cancellable CPU tasks. A Runner dispatches
// each task to an executor, registers its handle in the server's Active-Task
// Registry, races completion against a hard timeout, and on every exit path
// unregisters and terminates the execution exactly once.
package engine
