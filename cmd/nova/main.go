// Command nova dispatches a dependency graph of tasks to parallel agent
// workers and serves a read-only projection of their progress.
package main

func main() {
	Execute()
}
