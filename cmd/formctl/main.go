// Command formctl runs maintenance tasks against the FormFlow database.
package main

func main() {
	Execute()
}
