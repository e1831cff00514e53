package xlog

import "fmt"

// sprint joins args the same way the standard log package does for its
// non-formatted print methods.
func sprint(args ...interface{}) string {
	return fmt.Sprint(args...)
}
