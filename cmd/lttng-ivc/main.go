// Command lttng-ivc prepares and inspects the LTTng inter-version
// compatibility workspace.
package main

import "github.com/lttng/lttng-ivc/cmd/lttng-ivc/internal"

func main() {
	internal.Execute()
}
