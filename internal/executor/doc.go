// Package executor defines the interface that every isolation mode (an
// in-process goroutine, a spawned OS process) implements, along with the
// types exchanged between the task runner and executor implementations.
package executor
