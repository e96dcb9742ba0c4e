// Package transaction provides the ordered compensation stack backing the
// per-repository create saga.
package transaction
