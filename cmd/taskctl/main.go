// taskctl is the operator CLI: schema migrations, admin seeding and the
// audit-log consumer.
package main

import (
	"fmt"
	"os"

	"github.com/iliyamo/task-manager/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
